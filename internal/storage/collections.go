package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureCollection creates the named collection with the given vector
// dimension, or returns the existing one if its dimension matches. A
// different dimension means the embedding model changed under existing data
// and fails with ErrDimensionMismatch. An existing collection keeps the model
// name it was created with.
func (s *Store) EnsureCollection(name string, dimension int, model string) (Collection, error) {
	if name == "" {
		return Collection{}, errors.New("collection name is required")
	}
	if dimension <= 0 {
		return Collection{}, fmt.Errorf("invalid dimension %d for collection %s", dimension, name)
	}

	// Insert-if-absent and re-read, so that two processes opening the same
	// collection agree on its dimension.
	_, err := s.db.Exec(`
		INSERT INTO collections (name, dimension, embed_model, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, dimension, model, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return Collection{}, fmt.Errorf("creating collection %s: %w", name, err)
	}

	c, err := s.GetCollection(name)
	if err != nil {
		return Collection{}, err
	}
	if c.Dimension != dimension {
		return Collection{}, fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
			ErrDimensionMismatch, name, c.Dimension, dimension)
	}
	return c, nil
}

// GetCollection returns the named collection or ErrNotFound.
func (s *Store) GetCollection(name string) (Collection, error) {
	var (
		c         Collection
		createdAt string
	)
	err := s.db.QueryRow(`
		SELECT name, dimension, embed_model, created_at
		FROM collections WHERE name = ?`, name,
	).Scan(&c.Name, &c.Dimension, &c.EmbedModel, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fmt.Errorf("collection %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Collection{}, fmt.Errorf("reading collection %s: %w", name, err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Collection{}, fmt.Errorf("collection %s: parsing created_at: %w", name, err)
	}
	return c, nil
}
