package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/graph"
)

// SearchRequest is the body of POST /api/search. Limit and ScoreThreshold
// fall back to the configured defaults when omitted.
type SearchRequest struct {
	Query            string   `json:"query"`
	Limit            *int     `json:"limit,omitempty"`
	ScoreThreshold   *float32 `json:"score_threshold,omitempty"`
	FilterCategory   string   `json:"filter_category,omitempty"`
	FilterSourceType string   `json:"filter_source_type,omitempty"`
	FilterTags       []string `json:"filter_tags,omitempty"`
}

// SearchResponse is returned by POST /api/search. Relationships is set when
// the search found at least two documents.
type SearchResponse struct {
	Query         string                   `json:"query"`
	TotalResults  int                      `json:"total_results"`
	Results       []documents.SearchResult `json:"results"`
	Relationships *graph.Graph             `json:"relationships"`
}

// SimilarRequest is the body of POST /api/search/similar.
type SimilarRequest struct {
	DocumentID     string   `json:"document_id"`
	Limit          *int     `json:"limit,omitempty"`
	ScoreThreshold *float32 `json:"score_threshold,omitempty"`
}

// DocumentRef identifies the document a similarity query started from.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SimilarResponse is returned by POST /api/search/similar.
type SimilarResponse struct {
	ReferenceDocument DocumentRef              `json:"reference_document"`
	SimilarDocuments  []documents.SearchResult `json:"similar_documents"`
	TotalFound        int                      `json:"total_found"`
}

// RelationshipsRequest is the body of POST /api/search/relationships.
type RelationshipsRequest struct {
	DocumentIDs         []string `json:"document_ids"`
	SimilarityThreshold *float32 `json:"similarity_threshold,omitempty"`
}

func (d Deps) limitOr(v *int) int {
	if v == nil {
		return d.Defaults.Limit
	}
	return *v
}

func thresholdOr(v *float32, def float32) float32 {
	if v == nil {
		return def
	}
	return *v
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		q := documents.SearchQuery{
			Query:          req.Query,
			Limit:          deps.limitOr(req.Limit),
			ScoreThreshold: thresholdOr(req.ScoreThreshold, deps.Defaults.ScoreThreshold),
			Category:       req.FilterCategory,
			SourceType:     req.FilterSourceType,
			Tags:           req.FilterTags,
		}
		if err := checkLimit(q.Limit, MaxResultLimit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := checkThreshold("score_threshold", q.ScoreThreshold); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		results, err := deps.Documents.Search(r.Context(), q)
		if err != nil {
			writeError(w, deps.Logger, "search", err)
			return
		}
		if results == nil {
			results = []documents.SearchResult{}
		}

		resp := SearchResponse{Query: req.Query, TotalResults: len(results), Results: results}
		if len(results) >= 2 {
			ids := make([]string, len(results))
			for i, res := range results {
				ids[i] = res.ID
			}
			g, err := deps.Graph.Relationships(r.Context(), ids, searchGraphThreshold)
			if err != nil {
				writeError(w, deps.Logger, "search relationships", err)
				return
			}
			resp.Relationships = &g
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleFindSimilar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimilarRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.DocumentID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}
		limit := deps.limitOr(req.Limit)
		threshold := thresholdOr(req.ScoreThreshold, deps.Defaults.ScoreThreshold)
		if err := checkLimit(limit, MaxResultLimit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := checkThreshold("score_threshold", threshold); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		ref, err := deps.Documents.Get(r.Context(), req.DocumentID)
		if err != nil {
			writeError(w, deps.Logger, "find similar", err)
			return
		}
		if ref == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "reference document %s not found", req.DocumentID)
			return
		}

		results, err := deps.Documents.FindSimilar(r.Context(), req.DocumentID, limit, threshold)
		if err != nil {
			writeError(w, deps.Logger, "find similar", err)
			return
		}
		if results == nil {
			results = []documents.SearchResult{}
		}
		writeJSON(w, http.StatusOK, SimilarResponse{
			ReferenceDocument: DocumentRef{ID: ref.ID, Title: ref.Title},
			SimilarDocuments:  results,
			TotalFound:        len(results),
		})
	}
}

func handleRelationships(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RelationshipsRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		threshold := thresholdOr(req.SimilarityThreshold, deps.Defaults.GraphThreshold)
		if err := checkThreshold("similarity_threshold", threshold); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		g, err := deps.Graph.Relationships(r.Context(), req.DocumentIDs, threshold)
		if err != nil {
			writeError(w, deps.Logger, "relationships", err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleExplore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", graph.DefaultExploreLimit)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be an integer")
			return
		}
		if err := checkLimit(limit, MaxListLimit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		threshold, ok := queryFloat(r, "threshold", deps.Defaults.GraphThreshold)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "threshold must be a number")
			return
		}
		if err := checkThreshold("threshold", threshold); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		g, err := deps.Graph.Explore(r.Context(), graph.ExploreQuery{
			Limit:      limit,
			Category:   r.URL.Query().Get("category"),
			SourceType: r.URL.Query().Get("source_type"),
			Threshold:  threshold,
		})
		if err != nil {
			writeError(w, deps.Logger, "explore", err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}
