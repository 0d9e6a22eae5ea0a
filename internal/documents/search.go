package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/semdoc/internal/index"
)

func validateRange(limit int, threshold float32) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrValidation, limit)
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: score threshold must be within [0, 1], got %g", ErrValidation, threshold)
	}
	return nil
}

// buildFilter turns the optional query fields into index conditions. Empty
// fields are left out rather than matched against the empty string.
func buildFilter(category, sourceType string, tags []string) *index.Filter {
	var conds []index.Condition
	if category != "" {
		conds = append(conds, index.MatchCategory(category))
	}
	if sourceType != "" {
		conds = append(conds, index.MatchSourceType(sourceType))
	}
	var nonEmpty []string
	for _, t := range tags {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) > 0 {
		conds = append(conds, index.MatchAnyTag(nonEmpty...))
	}
	return index.NewFilter(conds...)
}

func toResults(points []index.ScoredPoint) []SearchResult {
	results := make([]SearchResult, len(points))
	for i, p := range points {
		results[i] = SearchResult{Document: fromPayload(p.ID, p.Payload), Score: p.Score}
	}
	return results
}

// Search embeds the query text and returns the best matching documents by
// descending score. Ties are ordered by ascending id.
func (s *Store) Search(ctx context.Context, q SearchQuery) (results []SearchResult, err error) {
	defer s.observe("search", time.Now(), &err)
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if err := validateRange(q.Limit, q.ScoreThreshold); err != nil {
		return nil, err
	}

	vec, err := s.encoder.EncodeOne(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filter := buildFilter(q.Category, q.SourceType, q.Tags)
	points, err := s.index.Search(ctx, index.SearchRequest{
		Vector:         vec,
		Limit:          q.Limit,
		ScoreThreshold: q.ScoreThreshold,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	s.logger.Debug("search", "results", len(points), "filter", filter.String())
	return toResults(points), nil
}

// FindSimilar returns documents similar to the stored document id, using its
// stored vector as the query. The document itself is never part of the
// result. Returns ErrNotFound when id does not exist.
func (s *Store) FindSimilar(ctx context.Context, id string, limit int, threshold float32) (results []SearchResult, err error) {
	defer s.observe("find_similar", time.Now(), &err)
	if err := validateRange(limit, threshold); err != nil {
		return nil, err
	}

	points, err := s.index.Retrieve(ctx, []string{id}, true)
	if err != nil {
		return nil, fmt.Errorf("retrieving document %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// One extra slot because the document matches itself.
	hits, err := s.index.Search(ctx, index.SearchRequest{
		Vector:         points[0].Vector,
		Limit:          limit + 1,
		ScoreThreshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("searching documents similar to %s: %w", id, err)
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return toResults(kept), nil
}
