package storage

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the filter indexes on categorical fields are created.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_points_category", "idx_points_source_type", "idx_point_tags_tag", "idx_point_tags_point"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestEnsureCollection_CreatesOnce(t *testing.T) {
	s := openTestStore(t)

	c, err := s.EnsureCollection("documents", 384, "nomic-embed-text")
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if c.Dimension != 384 {
		t.Errorf("Dimension = %d, want 384", c.Dimension)
	}

	again, err := s.EnsureCollection("documents", 384, "other-model")
	if err != nil {
		t.Fatalf("second EnsureCollection: %v", err)
	}
	if again.EmbedModel != "nomic-embed-text" {
		t.Errorf("EmbedModel = %q, want original model to be kept", again.EmbedModel)
	}

	got, err := s.GetCollection("documents")
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if got.Dimension != 384 || !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("GetCollection = %+v, want %+v", got, c)
	}
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.EnsureCollection("documents", 384, "a"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	_, err := s.EnsureCollection("documents", 768, "b")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEnsureCollection_InvalidArgs(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.EnsureCollection("", 384, "m"); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := s.EnsureCollection("documents", 0, "m"); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetCollection("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(ms) == 0 || ms[0].version != 1 {
		t.Fatalf("migrations = %+v, want version 1 first", ms)
	}
}

func TestOpen_WALOnDisk(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
