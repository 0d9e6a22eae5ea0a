// Package ingest turns files on disk into documents and imports them in
// batches.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/kalambet/semdoc/internal/documents"
)

// ErrUnsupported is returned for files whose extension has no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// ErrEmpty is returned when a file yields no text.
var ErrEmpty = errors.New("no text content")

// Source types assigned to imported files.
const (
	TypeText     = "text"
	TypeMarkdown = "markdown"
	TypeHTML     = "html"
	TypePDF      = "pdf"
)

const maxTitleRunes = 500

var extractors = map[string]struct {
	kind string
	fn   func(path string) (title, text string, err error)
}{
	".txt":      {TypeText, extractPlain},
	".text":     {TypeText, extractPlain},
	".md":       {TypeMarkdown, extractMarkdown},
	".markdown": {TypeMarkdown, extractMarkdown},
	".html":     {TypeHTML, extractHTML},
	".htm":      {TypeHTML, extractHTML},
	".pdf":      {TypePDF, extractPDF},
}

// Supported reports whether path has an extension Extract understands.
func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads path and returns a document ready to add. The title comes from
// the file itself when it has one (a markdown heading, an HTML <title>) and
// falls back to the file name. Source is the path; SourceType is the format.
func Extract(path string) (documents.NewDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	x, ok := extractors[ext]
	if !ok {
		return documents.NewDocument{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	title, text, err := x.fn(path)
	if err != nil {
		return documents.NewDocument{}, fmt.Errorf("extracting %s: %w", path, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return documents.NewDocument{}, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return documents.NewDocument{
		Title:      truncateRunes(title, maxTitleRunes),
		Content:    text,
		Source:     path,
		SourceType: x.kind,
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func extractPlain(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return "", string(data), nil
}

// extractMarkdown uses the first ATX heading as the title.
func extractMarkdown(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	text := string(data)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#")), text, nil
		}
	}
	return "", text, nil
}

func extractHTML(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", "", fmt.Errorf("parsing html: %w", err)
	}

	var title string
	var body strings.Builder
	var walk func(n *html.Node, inTitle bool)
	walk = func(n *html.Node, inTitle bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				inTitle = true
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if inTitle {
					if title == "" {
						title = t
					}
				} else {
					if body.Len() > 0 {
						body.WriteByte(' ')
					}
					body.WriteString(t)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTitle)
		}
	}
	walk(doc, false)
	return title, body.String(), nil
}

func extractPDF(path string) (string, string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", "", fmt.Errorf("reading pdf text: %w", err)
	}
	return "", buf.String(), nil
}
