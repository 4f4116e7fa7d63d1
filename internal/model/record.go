package model

import (
	"strings"
	"time"
)

// RawRecord is one unit fetched from an external source. Plugins create
// records; nothing mutates them afterwards.
type RawRecord struct {
	Source      string            `json:"source"`
	Title       string            `json:"title,omitempty"`
	Body        string            `json:"body,omitempty"`
	URL         string            `json:"url,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Text returns the embeddable text of the record: title and body joined,
// whitespace-trimmed. May be empty for records with no usable content.
func (r RawRecord) Text() string {
	title := strings.TrimSpace(r.Title)
	body := strings.TrimSpace(r.Body)
	switch {
	case title != "" && body != "":
		return title + " " + body
	case title != "":
		return title
	default:
		return body
	}
}

// ScoredRecord is a RawRecord annotated with its relevance score against a
// reference query and the embedding used to compute it. Recomputation
// produces a new ScoredRecord, never an in-place update.
type ScoredRecord struct {
	RawRecord
	Score     float64   `json:"score"`
	Embedding []float32 `json:"-"`
}
