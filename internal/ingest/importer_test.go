package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/kalambet/semdoc/internal/documents"
)

type recordingAdder struct {
	batches [][]documents.NewDocument
	failOn  int // 1-based batch number that fails; 0 never fails
}

func (a *recordingAdder) AddBulk(_ context.Context, docs []documents.NewDocument) ([]string, error) {
	if a.failOn == len(a.batches)+1 {
		return nil, errors.New("store unavailable")
	}
	a.batches = append(a.batches, docs)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = "id-" + filepath.Base(d.Source)
	}
	return ids, nil
}

func TestImporter_Batches(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("content %d", i)))
	}
	paths = append(paths, writeFile(t, dir, "skip.png", "x"))

	adder := &recordingAdder{}
	im := NewImporter(adder, ImporterOptions{BatchSize: 2, Category: "arsiv", Tags: []string{"import"}})

	var progress []int
	res, err := im.Import(context.Background(), paths, func(done int) { progress = append(progress, done) })
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.IDs) != 5 {
		t.Errorf("imported %d documents, want 5", len(res.IDs))
	}
	if len(adder.batches) != 3 {
		t.Errorf("AddBulk called %d times, want 3", len(adder.batches))
	}
	if len(res.Failed) != 1 {
		t.Errorf("failed = %v, want the png only", res.Failed)
	}
	if len(progress) != 6 || progress[5] != 6 {
		t.Errorf("progress = %v, want 1..6", progress)
	}
	for _, b := range adder.batches {
		for _, d := range b {
			if d.Category != "arsiv" || len(d.Tags) != 1 {
				t.Errorf("doc %s missing category or tags: %+v", d.Source, d)
			}
		}
	}
}

func TestImporter_BatchFailureStops(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 4; i++ {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("doc%d.txt", i), "text"))
	}

	adder := &recordingAdder{failOn: 2}
	res, err := NewImporter(adder, ImporterOptions{BatchSize: 2}).Import(context.Background(), paths, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.IDs) != 2 {
		t.Errorf("stored %d documents before failure, want 2", len(res.IDs))
	}
}

func TestImporter_Cancelled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImporter(&recordingAdder{}, ImporterOptions{}).Import(ctx, []string{path}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
