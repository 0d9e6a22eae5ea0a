package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/semdoc/internal/index"
)

// Encoder turns text into unit vectors. *embedding.Embedder implements it.
type Encoder interface {
	EncodeOne(ctx context.Context, text string) ([]float32, error)
	EncodeMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Observer is notified after every store operation.
type Observer interface {
	ObserveOperation(op string, err error, took time.Duration)
}

// Options carries optional collaborators. Zero values select the defaults:
// slog.Default, time.Now, uuid.NewString and no observer.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
	NewID    func() string
}

// Store maps document operations onto an Encoder and a VectorIndex. It keeps
// no state of its own; the index owns every document.
type Store struct {
	index    index.VectorIndex
	encoder  Encoder
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// New creates a Store over the given index and encoder.
func New(idx index.VectorIndex, enc Encoder, opts Options) *Store {
	s := &Store{
		index:    idx,
		encoder:  enc,
		logger:   opts.Logger,
		observer: opts.Observer,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// observe is deferred with a pointer to the named error result so that it
// sees the final value.
func (s *Store) observe(op string, start time.Time, err *error) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, *err, time.Since(start))
	}
}

func validateNew(d NewDocument) error {
	if d.ID != "" && strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id must not be blank", ErrValidation)
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// build assigns the id and timestamps. Absent tags and metadata are stored as
// an empty list and an empty map.
func (s *Store) build(d NewDocument, now time.Time) Document {
	id := d.ID
	if id == "" {
		id = s.newID()
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Document{
		ID:         id,
		Title:      d.Title,
		Content:    d.Content,
		Source:     d.Source,
		SourceType: d.SourceType,
		Category:   d.Category,
		Tags:       tags,
		Metadata:   meta,
		CreatedAt:  now,
	}
}

// Add embeds and stores one document and returns its id. Vector and payload
// are written together.
func (s *Store) Add(ctx context.Context, d NewDocument) (id string, err error) {
	defer s.observe("add", time.Now(), &err)
	if err := validateNew(d); err != nil {
		return "", err
	}

	doc := s.build(d, s.now().UTC())
	vec, err := s.encoder.EncodeOne(ctx, embeddingText(doc.Title, doc.Content))
	if err != nil {
		return "", fmt.Errorf("embedding document: %w", err)
	}
	if err := s.index.Upsert(ctx, []index.Point{{ID: doc.ID, Vector: vec, Payload: doc.payload()}}); err != nil {
		return "", fmt.Errorf("storing document %s: %w", doc.ID, err)
	}

	s.logger.Debug("document added", "id", doc.ID)
	return doc.ID, nil
}

// AddBulk embeds all documents with one batched call and stores them with one
// index write. Nothing is stored if validation or embedding fails for any of
// them. Ids are returned in input order. When two inputs share an id the later
// one wins.
func (s *Store) AddBulk(ctx context.Context, docs []NewDocument) (ids []string, err error) {
	defer s.observe("add_bulk", time.Now(), &err)
	if len(docs) == 0 {
		return nil, nil
	}
	for i, d := range docs {
		if err := validateNew(d); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}

	now := s.now().UTC()
	built := make([]Document, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		built[i] = s.build(d, now)
		texts[i] = embeddingText(built[i].Title, built[i].Content)
	}

	vecs, err := s.encoder.EncodeMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d documents: %w", len(docs), err)
	}
	if len(vecs) != len(built) {
		return nil, fmt.Errorf("embedding batch: got %d vectors for %d documents", len(vecs), len(built))
	}

	points := make([]index.Point, len(built))
	ids = make([]string, len(built))
	for i, doc := range built {
		points[i] = index.Point{ID: doc.ID, Vector: vecs[i], Payload: doc.payload()}
		ids[i] = doc.ID
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("storing batch of %d documents: %w", len(points), err)
	}

	s.logger.Debug("documents added", "count", len(ids))
	return ids, nil
}

// Get returns the document or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (doc *Document, err error) {
	defer s.observe("get", time.Now(), &err)
	points, err := s.index.Retrieve(ctx, []string{id}, false)
	if err != nil {
		return nil, fmt.Errorf("retrieving document %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	d := fromPayload(points[0].ID, points[0].Payload)
	return &d, nil
}

// Update merges patch over the stored document and reports false if it does
// not exist. A patch that touches title or content re-embeds the merged text
// and rewrites vector and payload together; any other patch rewrites only the
// payload. The merge reads a snapshot, so concurrent updates of one document
// are last-write-wins.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (ok bool, err error) {
	defer s.observe("update", time.Now(), &err)
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) == "" {
		return false, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}

	points, err := s.index.Retrieve(ctx, []string{id}, false)
	if err != nil {
		return false, fmt.Errorf("retrieving document %s: %w", id, err)
	}
	if len(points) == 0 {
		return false, nil
	}

	doc := fromPayload(id, points[0].Payload)
	patch.applyTo(&doc)
	now := s.now().UTC()
	doc.UpdatedAt = &now

	if !patch.reembeds() {
		ok, err := s.index.SetPayload(ctx, id, doc.payload())
		if err != nil {
			return false, fmt.Errorf("updating document %s: %w", id, err)
		}
		s.logger.Debug("document payload updated", "id", id, "found", ok)
		return ok, nil
	}

	vec, err := s.encoder.EncodeOne(ctx, embeddingText(doc.Title, doc.Content))
	if err != nil {
		return false, fmt.Errorf("re-embedding document %s: %w", id, err)
	}
	if err := s.index.Upsert(ctx, []index.Point{{ID: id, Vector: vec, Payload: doc.payload()}}); err != nil {
		return false, fmt.Errorf("updating document %s: %w", id, err)
	}
	s.logger.Debug("document re-embedded", "id", id)
	return true, nil
}

// Delete removes a document and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (ok bool, err error) {
	defer s.observe("delete", time.Now(), &err)
	ok, err = s.index.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting document %s: %w", id, err)
	}
	return ok, nil
}

// List returns up to limit documents in id order, skipping the first offset.
func (s *Store) List(ctx context.Context, limit, offset int) (docs []Document, err error) {
	defer s.observe("list", time.Now(), &err)
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrValidation, limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative, got %d", ErrValidation, offset)
	}

	page, err := s.index.Scroll(ctx, index.ScrollRequest{Limit: limit, Skip: offset})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs = make([]Document, len(page.Points))
	for i, p := range page.Points {
		docs[i] = fromPayload(p.ID, p.Payload)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
