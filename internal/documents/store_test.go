package documents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/semdoc/internal/embedding"
	"github.com/kalambet/semdoc/internal/engine"
	"github.com/kalambet/semdoc/internal/index"
	"github.com/kalambet/semdoc/internal/storage"
)

const testDim = 256

var (
	t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingObserver struct {
	mu   sync.Mutex
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveOperation(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

// failingEncoder fails every call with an embedding error.
type failingEncoder struct{}

func (failingEncoder) EncodeOne(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: model unavailable", embedding.ErrEmbedding)
}

func (failingEncoder) EncodeMany(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: model unavailable", embedding.ErrEmbedding)
}

type fixture struct {
	store    *Store
	index    *index.SQLiteIndex
	clock    *fixedClock
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coll, err := st.EnsureCollection("documents", testDim, engine.HashModel)
	require.NoError(t, err)
	idx := index.NewSQLiteIndex(st.DB(), coll)
	emb := embedding.New(engine.NewHashEngine(testDim), engine.HashModel, embedding.Options{})

	clock := &fixedClock{now: t0}
	obs := &recordingObserver{}
	n := 0
	s := New(idx, emb, Options{
		Now:      clock.Now,
		Observer: obs,
		NewID: func() string {
			n++
			return fmt.Sprintf("doc-%03d", n)
		},
	})
	return &fixture{store: s, index: idx, clock: clock, observer: obs}
}

func (f *fixture) vector(t *testing.T, id string) []float32 {
	t.Helper()
	points, err := f.index.Retrieve(context.Background(), []string{id}, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	return points[0].Vector
}

func maxAbsDiff(a, b []float32) float32 {
	var m float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		m = max(m, d)
	}
	return m
}

func TestAdd_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := NewDocument{
		Title:      "Go memory model",
		Content:    "Happens-before relations between goroutines",
		Source:     "https://go.dev/ref/mem",
		SourceType: "web",
		Category:   "programming",
		Tags:       []string{"go", "concurrency", "go"},
		Metadata:   map[string]any{"author": "rsc", "year": float64(2022)},
	}
	id, err := f.store.Add(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "doc-001", id)

	got, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, Document{
		ID:         id,
		Title:      in.Title,
		Content:    in.Content,
		Source:     in.Source,
		SourceType: in.SourceType,
		Category:   in.Category,
		Tags:       []string{"go", "concurrency", "go"},
		Metadata:   in.Metadata,
		CreatedAt:  t0,
	}, *got)
	assert.Nil(t, got.UpdatedAt)
}

func TestAdd_DefaultsAndCallerID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Add(ctx, NewDocument{ID: "custom", Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, "custom", id)

	got, err := f.store.Get(ctx, "custom")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, map[string]any{}, got.Metadata)
}

func TestAdd_GeneratesUUID(t *testing.T) {
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	coll, err := st.EnsureCollection("documents", 32, engine.HashModel)
	require.NoError(t, err)
	s := New(index.NewSQLiteIndex(st.DB(), coll),
		embedding.New(engine.NewHashEngine(32), engine.HashModel, embedding.Options{}), Options{})

	id, err := s.Add(context.Background(), NewDocument{Title: "t", Content: "c"})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

func TestAdd_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  NewDocument
	}{
		{"empty title", NewDocument{Content: "c"}},
		{"blank title", NewDocument{Title: "  ", Content: "c"}},
		{"empty content", NewDocument{Title: "t"}},
		{"blank id", NewDocument{ID: " ", Title: "t", Content: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Add(ctx, tt.doc)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	s := New(f.index, failingEncoder{}, Options{})

	_, err := s.Add(context.Background(), NewDocument{Title: "t", Content: "c"})
	assert.ErrorIs(t, err, embedding.ErrEmbedding)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddBulk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids, err := f.store.AddBulk(ctx, []NewDocument{
		{Title: "first", Content: "one"},
		{ID: "named", Title: "second", Content: "two"},
		{Title: "third", Content: "three"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-001", "named", "doc-002"}, ids)

	for _, id := range ids {
		d, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, t0, d.CreatedAt)
	}

	single, err := f.store.encoder.EncodeOne(ctx, "second two")
	require.NoError(t, err)
	assert.Less(t, maxAbsDiff(single, f.vector(t, "named")), float32(1e-6))
}

func TestAddBulk_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddBulk(ctx, []NewDocument{
		{Title: "ok", Content: "fine"},
		{Title: "", Content: "missing title"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	s := New(f.index, failingEncoder{}, Options{})
	_, err = s.AddBulk(ctx, []NewDocument{{Title: "a", Content: "b"}, {Title: "c", Content: "d"}})
	assert.ErrorIs(t, err, embedding.ErrEmbedding)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddBulk_Empty(t *testing.T) {
	f := newFixture(t)
	ids, err := f.store.AddBulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGet_Missing(t *testing.T) {
	f := newFixture(t)
	got, err := f.store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.Add(ctx, NewDocument{Title: "t", Content: "c"})
	require.NoError(t, err)

	ok, err := f.store.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.store.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.store.Delete(ctx, "never-existed")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdate_TagsOnlyKeepsVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.Add(ctx, NewDocument{Title: "Kafka", Content: "Log-structured messaging", Tags: []string{"old"}})
	require.NoError(t, err)
	other, err := f.store.Add(ctx, NewDocument{Title: "Kafka streams", Content: "Messaging joins"})
	require.NoError(t, err)

	before := f.vector(t, id)
	simBefore, err := f.store.FindSimilar(ctx, other, 5, 0)
	require.NoError(t, err)

	f.clock.Set(t1)
	ok, err := f.store.Update(ctx, id, Patch{Tags: []string{"new", "shiny"}})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, before, f.vector(t, id))

	got, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "shiny"}, got.Tags)
	assert.Equal(t, "Kafka", got.Title)
	assert.Equal(t, t0, got.CreatedAt)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, t1, *got.UpdatedAt)

	simAfter, err := f.store.FindSimilar(ctx, other, 5, 0)
	require.NoError(t, err)
	require.Len(t, simAfter, len(simBefore))
	for i := range simBefore {
		assert.Equal(t, simBefore[i].ID, simAfter[i].ID)
		assert.Equal(t, simBefore[i].Score, simAfter[i].Score)
	}
}

func TestUpdate_ContentChangesVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.Add(ctx, NewDocument{Title: "Kafka", Content: "Log-structured messaging", Category: "infra"})
	require.NoError(t, err)
	before := f.vector(t, id)

	newContent := "Relational query planning and indexes"
	ok, err := f.store.Update(ctx, id, Patch{Content: &newContent})
	require.NoError(t, err)
	require.True(t, ok)

	after := f.vector(t, id)
	assert.Greater(t, maxAbsDiff(before, after), float32(1e-3))

	want, err := f.store.encoder.EncodeOne(ctx, "Kafka "+newContent)
	require.NoError(t, err)
	assert.Less(t, maxAbsDiff(want, after), float32(1e-6))

	got, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "infra", got.Category)
	assert.Equal(t, newContent, got.Content)
}

func TestUpdate_ClearFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.Add(ctx, NewDocument{Title: "t", Content: "c", Category: "x", Tags: []string{"a"}})
	require.NoError(t, err)

	empty := ""
	ok, err := f.store.Update(ctx, id, Patch{Category: &empty, Tags: []string{}})
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.store.Search(ctx, SearchQuery{Query: "t c", Limit: 10, Category: "x"})
	require.NoError(t, err)
	assert.Empty(t, res)

	got, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Category)
	assert.Empty(t, got.Tags)
}

func TestUpdate_MissingAndInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	title := "x"
	ok, err := f.store.Update(ctx, "missing", Patch{Title: &title})
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := f.store.Add(ctx, NewDocument{Title: "t", Content: "c"})
	require.NoError(t, err)
	blank := " "
	_, err = f.store.Update(ctx, id, Patch{Content: &blank})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 5 {
		_, err := f.store.Add(ctx, NewDocument{Title: fmt.Sprintf("title %d", i), Content: "body"})
		require.NoError(t, err)
	}

	page, err := f.store.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "doc-002", page[0].ID)
	assert.Equal(t, "doc-003", page[1].ID)

	all, err := f.store.List(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = f.store.List(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.store.List(ctx, 10, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestObserverSeesFinalError(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(context.Background(), NewDocument{})
	require.Error(t, err)

	require.Len(t, f.observer.ops, 1)
	assert.Equal(t, "add", f.observer.ops[0])
	assert.True(t, errors.Is(f.observer.errs[0], ErrValidation))
}
