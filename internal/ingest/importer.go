package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/semdoc/internal/documents"
)

// DefaultBatchSize is the number of documents sent per AddBulk call.
const DefaultBatchSize = 32

// BulkAdder stores a batch of documents atomically.
type BulkAdder interface {
	AddBulk(ctx context.Context, docs []documents.NewDocument) ([]string, error)
}

// Progress is called after each file is handled, with the number of files
// processed so far.
type Progress func(done int)

// Result summarises an import run.
type Result struct {
	IDs    []string
	Failed map[string]error
}

// Importer extracts files and adds them in batches.
type Importer struct {
	adder     BulkAdder
	batchSize int
	category  string
	tags      []string
	logger    *slog.Logger
}

// ImporterOptions configures an Importer. Category and Tags are applied to
// every imported document.
type ImporterOptions struct {
	BatchSize int
	Category  string
	Tags      []string
	Logger    *slog.Logger
}

// NewImporter creates an Importer that writes through adder.
func NewImporter(adder BulkAdder, opts ImporterOptions) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Importer{
		adder:     adder,
		batchSize: opts.BatchSize,
		category:  opts.Category,
		tags:      opts.Tags,
		logger:    opts.Logger,
	}
}

// Import extracts every path and adds the results batch by batch. Files that
// cannot be extracted are recorded in Result.Failed and skipped. A failed
// batch aborts the run; batches already stored stay stored.
func (im *Importer) Import(ctx context.Context, paths []string, progress Progress) (Result, error) {
	res := Result{Failed: map[string]error{}}
	batch := make([]documents.NewDocument, 0, im.batchSize)
	done := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ids, err := im.adder.AddBulk(ctx, batch)
		if err != nil {
			return fmt.Errorf("adding batch of %d documents: %w", len(batch), err)
		}
		res.IDs = append(res.IDs, ids...)
		im.logger.Debug("imported batch", "documents", len(ids))
		batch = make([]documents.NewDocument, 0, im.batchSize)
		return nil
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc, err := Extract(p)
		if err != nil {
			im.logger.Warn("skipping file", "path", p, "error", err)
			res.Failed[p] = err
		} else {
			doc.Category = im.category
			doc.Tags = im.tags
			batch = append(batch, doc)
			if len(batch) == im.batchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}
		done++
		if progress != nil {
			progress(done)
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}
