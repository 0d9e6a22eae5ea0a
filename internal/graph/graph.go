// Package graph derives similarity graphs over stored documents.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/index"
)

// Defaults used when Options fields are zero.
const (
	DefaultCandidateLimit = 10
	DefaultExploreLimit   = 50
)

// Node is one document in a graph.
type Node struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// Edge is an undirected similarity link. Source sorts before Target.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float32 `json:"weight"`
}

// Graph is a set of nodes and the similarity edges between them.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func emptyGraph() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// Options configures an Engine.
type Options struct {
	// CandidateLimit is the number of neighbours fetched per node.
	CandidateLimit int
	Logger         *slog.Logger
}

// Engine builds relationship graphs from a VectorIndex.
type Engine struct {
	index      index.VectorIndex
	candidates int
	logger     *slog.Logger
}

// New creates an Engine over idx.
func New(idx index.VectorIndex, opts Options) *Engine {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{index: idx, candidates: opts.CandidateLimit, logger: opts.Logger}
}

type edgeKey struct{ a, b string }

func canonical(x, y string) edgeKey {
	if y < x {
		x, y = y, x
	}
	return edgeKey{x, y}
}

// Relationships links the given documents by similarity. Missing ids are
// dropped; nodes keep the input order without duplicates.
//
// Each node runs one neighbour search capped at the candidate limit, so a
// node with many close neighbours outside the set may miss edges inside it.
// Every pair is found from both ends; the edge keeps the score seen first,
// walking nodes in input order and hits in rank order. The two searches can
// disagree in the last bits of the score, and this rule makes the reported
// weight depend only on the input order.
func (e *Engine) Relationships(ctx context.Context, ids []string, threshold float32) (Graph, error) {
	if threshold < 0 || threshold > 1 {
		return Graph{}, fmt.Errorf("%w: similarity threshold must be within [0, 1], got %g", documents.ErrValidation, threshold)
	}
	if len(ids) == 0 {
		return emptyGraph(), nil
	}

	points, err := e.index.Retrieve(ctx, ids, true)
	if err != nil {
		return Graph{}, fmt.Errorf("retrieving documents: %w", err)
	}

	g := emptyGraph()
	members := make(map[string]struct{}, len(points))
	for _, p := range points {
		members[p.ID] = struct{}{}
		g.Nodes = append(g.Nodes, Node{
			ID:         p.ID,
			Title:      p.Payload.Title,
			Category:   p.Payload.Category,
			SourceType: p.Payload.SourceType,
		})
	}

	seen := make(map[edgeKey]struct{})
	for _, p := range points {
		hits, err := e.index.Search(ctx, index.SearchRequest{
			Vector:         p.Vector,
			Limit:          e.candidates,
			ScoreThreshold: threshold,
		})
		if err != nil {
			return Graph{}, fmt.Errorf("searching neighbours of %s: %w", p.ID, err)
		}
		for _, h := range hits {
			if h.ID == p.ID {
				continue
			}
			if _, ok := members[h.ID]; !ok {
				continue
			}
			k := canonical(p.ID, h.ID)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			g.Edges = append(g.Edges, Edge{Source: k.a, Target: k.b, Weight: h.Score})
		}
	}

	e.logger.Debug("relationships built", "requested", len(ids), "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g, nil
}

// ExploreQuery selects the documents an exploration graph is built from.
type ExploreQuery struct {
	Limit      int
	Category   string
	SourceType string
	Threshold  float32
}

// Explore builds a relationship graph over the first Limit documents (in id
// order) that match the optional category and source type. Fewer than two
// matching documents yield an empty graph.
func (e *Engine) Explore(ctx context.Context, q ExploreQuery) (Graph, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultExploreLimit
	}

	var conds []index.Condition
	if q.Category != "" {
		conds = append(conds, index.MatchCategory(q.Category))
	}
	if q.SourceType != "" {
		conds = append(conds, index.MatchSourceType(q.SourceType))
	}

	page, err := e.index.Scroll(ctx, index.ScrollRequest{Limit: q.Limit, Filter: index.NewFilter(conds...)})
	if err != nil {
		return Graph{}, fmt.Errorf("scanning documents: %w", err)
	}
	if len(page.Points) < 2 {
		return emptyGraph(), nil
	}

	ids := make([]string, len(page.Points))
	for i, p := range page.Points {
		ids[i] = p.ID
	}
	return e.Relationships(ctx, ids, q.Threshold)
}
