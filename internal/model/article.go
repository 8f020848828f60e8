package model

import (
	"strings"
	"time"
)

// Article is a news document submitted for geographic enrichment.
type Article struct {
	ID          string     `json:"id"`
	URL         string     `json:"url,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	Content     string     `json:"content,omitempty"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// CombinedText returns the text analyzed by the NER engine: title and body
// joined by a newline, skipping empty parts.
func (a Article) CombinedText() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{a.Title, a.Body} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// FieldText returns the text of a named article field, or "" when absent.
func (a Article) FieldText(field string) string {
	switch field {
	case FieldTitle:
		return a.Title
	case FieldBody:
		return a.Body
	case FieldContent:
		return a.Content
	}
	return ""
}

// Article field names used throughout the extraction pipeline.
const (
	FieldTitle   = "title"
	FieldBody    = "body"
	FieldContent = "content"
)
