package index

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/semdoc/internal/storage"
)

// VectorIndex is a nearest-neighbour store keyed by point id. Each point holds
// exactly one vector and one payload. The SQLite implementation performs a
// brute-force cosine scan over filter-matching rows; an ANN-capable backend can
// replace it without changing callers.
type VectorIndex interface {
	// Upsert inserts or fully overwrites every given point in one atomic write.
	Upsert(ctx context.Context, points []Point) error

	// SetPayload overwrites the payload of an existing point and leaves its
	// vector untouched. Reports false if the point does not exist.
	SetPayload(ctx context.Context, id string, payload Payload) (bool, error)

	// Retrieve returns the points that exist among ids, in first-occurrence
	// order of ids. Missing ids are omitted.
	Retrieve(ctx context.Context, ids []string, withVector bool) ([]Point, error)

	// Delete removes a point. Reports false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// Search returns up to req.Limit points scoring at least req.ScoreThreshold,
	// by descending score with ties broken by ascending id.
	Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error)

	// Scroll pages through points in ascending id order.
	Scroll(ctx context.Context, req ScrollRequest) (ScrollPage, error)

	// Count returns the exact number of stored points.
	Count(ctx context.Context) (int, error)
}

// ErrBackend marks failures of the underlying store. Callers may retry;
// previously committed state is unchanged.
var ErrBackend = errors.New("vector index backend failure")

// ErrDimensionMismatch is returned for vectors whose length differs from the
// collection dimension.
var ErrDimensionMismatch = storage.ErrDimensionMismatch

// Payload is everything stored alongside a vector. The point id is the key
// and is not part of the payload.
type Payload struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"source_type,omitempty"`
	Category   string         `json:"category,omitempty"`
	Tags       []string       `json:"tags"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at"`
}

// Point is a stored record. Vector is nil when retrieved without vectors.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload Payload
}

// SearchRequest describes a filtered k-NN query.
type SearchRequest struct {
	Vector         []float32
	Limit          int
	ScoreThreshold float32
	Filter         *Filter
}

// ScrollRequest selects one page of a scan. After is an exclusive id cursor
// (empty starts from the beginning); Skip drops that many matching points
// after the cursor before the page starts.
type ScrollRequest struct {
	Limit  int
	After  string
	Skip   int
	Filter *Filter
}

// ScrollPage is one page of a scan. NextAfter is empty when the scan is
// exhausted.
type ScrollPage struct {
	Points    []Point
	NextAfter string
}

// BackendError wraps a storage failure so that errors.Is(err, ErrBackend)
// holds while the cause stays reachable.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func backendErr(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}
