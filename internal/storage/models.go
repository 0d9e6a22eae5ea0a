package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDimensionMismatch is returned when a collection is reopened with an
// embedder of a different vector dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Collection is a named vector namespace with a fixed dimension.
type Collection struct {
	Name       string
	Dimension  int
	EmbedModel string
	CreatedAt  time.Time
}
