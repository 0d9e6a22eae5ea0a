package documents

import (
	"errors"
	"time"

	"github.com/kalambet/semdoc/internal/index"
)

var (
	// ErrValidation marks caller input the store refuses: blank required
	// text or an out-of-range parameter.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned by operations that require an existing document.
	// Get, Update and Delete report absence through their return values instead.
	ErrNotFound = errors.New("document not found")
)

// Document is a stored document with its identifier.
type Document struct {
	ID         string         `json:"id"`
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

// NewDocument is the input to Add. ID is optional; a UUID is generated when
// it is empty.
type NewDocument struct {
	ID         string         `json:"id,omitempty"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"source_type,omitempty"`
	Category   string         `json:"category,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Patch lists the fields an update changes. Nil pointers, a nil Tags slice and
// a nil Metadata map leave the stored value alone; an empty non-nil slice or
// map clears it. Metadata replaces the stored map as a whole.
type Patch struct {
	Title      *string        `json:"title,omitempty"`
	Content    *string        `json:"content,omitempty"`
	Source     *string        `json:"source,omitempty"`
	SourceType *string        `json:"source_type,omitempty"`
	Category   *string        `json:"category,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Source == nil && p.SourceType == nil &&
		p.Category == nil && p.Tags == nil && p.Metadata == nil
}

// reembeds reports whether applying the patch changes the embedding text.
func (p Patch) reembeds() bool {
	return p.Title != nil || p.Content != nil
}

// SearchQuery is a free-text similarity query. Empty Category and SourceType,
// and an empty Tags list, do not constrain results.
type SearchQuery struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	ScoreThreshold float32  `json:"score_threshold"`
	Category       string   `json:"category,omitempty"`
	SourceType     string   `json:"source_type,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// SearchResult is a document scored against a query.
type SearchResult struct {
	Document
	Score float32 `json:"score"`
}

// embeddingText is the text a document is embedded from.
func embeddingText(title, content string) string {
	return title + " " + content
}

func fromPayload(id string, p index.Payload) Document {
	return Document{
		ID:         id,
		Title:      p.Title,
		Content:    p.Content,
		Source:     p.Source,
		SourceType: p.SourceType,
		Category:   p.Category,
		Tags:       p.Tags,
		Metadata:   p.Metadata,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (d Document) payload() index.Payload {
	return index.Payload{
		Title:      d.Title,
		Content:    d.Content,
		Source:     d.Source,
		SourceType: d.SourceType,
		Category:   d.Category,
		Tags:       d.Tags,
		Metadata:   d.Metadata,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (p Patch) applyTo(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Source != nil {
		d.Source = *p.Source
	}
	if p.SourceType != nil {
		d.SourceType = *p.SourceType
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Tags != nil {
		d.Tags = p.Tags
	}
	if p.Metadata != nil {
		d.Metadata = p.Metadata
	}
}
