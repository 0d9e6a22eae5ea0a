// Package api exposes the document store over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/embedding"
	"github.com/kalambet/semdoc/internal/graph"
	"github.com/kalambet/semdoc/internal/index"
	"github.com/kalambet/semdoc/internal/metrics"
	"github.com/kalambet/semdoc/internal/stats"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxBulkBodySize    = 32 << 20 // 32MB
)

// Request limits enforced before any core call.
const (
	MaxResultLimit = 100
	MaxListLimit   = 1000
	MaxTitleRunes  = 500
)

// searchGraphThreshold is the edge threshold of the graph attached to search
// responses.
const searchGraphThreshold = 0.5

// DocumentService is the document store as seen by the transports.
type DocumentService interface {
	Add(ctx context.Context, d documents.NewDocument) (string, error)
	AddBulk(ctx context.Context, docs []documents.NewDocument) ([]string, error)
	Get(ctx context.Context, id string) (*documents.Document, error)
	Update(ctx context.Context, id string, patch documents.Patch) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]documents.Document, error)
	Search(ctx context.Context, q documents.SearchQuery) ([]documents.SearchResult, error)
	FindSimilar(ctx context.Context, id string, limit int, threshold float32) ([]documents.SearchResult, error)
}

// GraphService builds relationship graphs.
type GraphService interface {
	Relationships(ctx context.Context, ids []string, threshold float32) (graph.Graph, error)
	Explore(ctx context.Context, q graph.ExploreQuery) (graph.Graph, error)
}

// StatsService aggregates collection statistics.
type StatsService interface {
	CollectionStats(ctx context.Context) (stats.CollectionStats, error)
}

// Info is reported by GET /api/info.
type Info struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Collection string `json:"collection"`
	Model      string `json:"model"`
	Dimension  int    `json:"dimension"`
}

// Defaults fill request fields the caller left out. A zero Limit selects 10;
// zero thresholds are used as given.
type Defaults struct {
	Limit          int
	ScoreThreshold float32
	GraphThreshold float32
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Documents DocumentService
	Graph     GraphService
	Stats     StatsService
	Metrics   *metrics.Metrics // optional; /metrics is not mounted when nil
	Info      Info
	Defaults  Defaults
	Logger    *slog.Logger
}

func (d *Deps) fill() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Defaults.Limit <= 0 {
		d.Defaults.Limit = 10
	}
}

// NewHandler returns the REST API.
func NewHandler(deps Deps) http.Handler {
	deps.fill()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", handleHealth(deps))
	r.Get("/api/info", handleInfo(deps))

	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", handleAddDocument(deps))
		r.Get("/", handleListDocuments(deps))
		r.Post("/bulk", handleAddBulk(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/{id}", handleGetDocument(deps))
		r.Put("/{id}", handleUpdateDocument(deps))
		r.Delete("/{id}", handleDeleteDocument(deps))
	})

	r.Route("/api/search", func(r chi.Router) {
		r.Post("/", handleSearch(deps))
		r.Post("/similar", handleFindSimilar(deps))
		r.Post("/relationships", handleRelationships(deps))
		r.Get("/explore", handleExplore(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": deps.Info.Name})
	}
}

func handleInfo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": deps.Info,
			"endpoints": map[string]string{
				"documents": "/api/documents",
				"search":    "/api/search",
				"metrics":   "/metrics",
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// errorStatus maps a core error onto an HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, documents.ErrValidation), errors.Is(err, index.ErrUnsupportedFilter):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, embedding.ErrEmbedding):
		return http.StatusBadGateway, "embedding_error"
	case errors.Is(err, index.ErrBackend):
		return http.StatusServiceUnavailable, "backend_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	code, errType := errorStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "status", code, "error", err)
	}
	httpError(w, code, errType, "%s: %v", op, err)
}

// decodeBody reads a JSON request body of at most limit bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter. ok is false when the
// parameter is present but not an integer.
func queryInt(r *http.Request, key string, def int) (v int, ok bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func queryFloat(r *http.Request, key string, def float32) (v float32, ok bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}
