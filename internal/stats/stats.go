// Package stats aggregates frequency tables over stored document metadata.
package stats

import (
	"context"
	"fmt"

	"github.com/kalambet/semdoc/internal/index"
)

// DefaultPageSize is the number of points read per scroll call.
const DefaultPageSize = 256

// CollectionStats summarises the categorical fields of every stored document.
type CollectionStats struct {
	TotalDocuments int            `json:"total_documents"`
	Categories     map[string]int `json:"categories"`
	SourceTypes    map[string]int `json:"source_types"`
	Tags           map[string]int `json:"tags"`
}

// Aggregator computes CollectionStats by scanning a VectorIndex.
type Aggregator struct {
	index    index.VectorIndex
	pageSize int
}

// New creates an Aggregator. pageSize <= 0 selects DefaultPageSize.
func New(idx index.VectorIndex, pageSize int) *Aggregator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Aggregator{index: idx, pageSize: pageSize}
}

// CollectionStats scans the whole collection one page at a time. Empty
// category and source type values are not counted; every tag occurrence is.
func (a *Aggregator) CollectionStats(ctx context.Context) (CollectionStats, error) {
	st := CollectionStats{
		Categories:  map[string]int{},
		SourceTypes: map[string]int{},
		Tags:        map[string]int{},
	}

	total, err := a.index.Count(ctx)
	if err != nil {
		return CollectionStats{}, fmt.Errorf("counting documents: %w", err)
	}
	st.TotalDocuments = total

	after := ""
	for {
		page, err := a.index.Scroll(ctx, index.ScrollRequest{Limit: a.pageSize, After: after})
		if err != nil {
			return CollectionStats{}, fmt.Errorf("scanning documents: %w", err)
		}
		for _, p := range page.Points {
			if c := p.Payload.Category; c != "" {
				st.Categories[c]++
			}
			if s := p.Payload.SourceType; s != "" {
				st.SourceTypes[s]++
			}
			for _, tag := range p.Payload.Tags {
				st.Tags[tag]++
			}
		}
		if page.NextAfter == "" {
			break
		}
		after = page.NextAfter
	}
	return st, nil
}
