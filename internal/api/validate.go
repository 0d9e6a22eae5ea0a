package api

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/semdoc/internal/documents"
)

func checkLimit(limit, max int) error {
	if limit < 1 || limit > max {
		return fmt.Errorf("limit must be within [1, %d], got %d", max, limit)
	}
	return nil
}

func checkThreshold(name string, v float32) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %g", name, v)
	}
	return nil
}

func checkTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleRunes {
		return fmt.Errorf("title must be at most %d characters, got %d", MaxTitleRunes, n)
	}
	return nil
}

func checkNewDocument(d documents.NewDocument) error {
	if err := checkTitle(d.Title); err != nil {
		return err
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

func checkPatch(p documents.Patch) error {
	if p.IsEmpty() {
		return fmt.Errorf("no fields to update")
	}
	if p.Title != nil {
		if err := checkTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return fmt.Errorf("content must not be empty")
	}
	return nil
}
