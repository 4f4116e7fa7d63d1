package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/signal-ingest/internal/model"
)

func TestFormatRecordsList(t *testing.T) {
	published := time.Date(2026, 7, 13, 10, 30, 0, 0, time.UTC)

	records := []model.ScoredRecord{
		{
			RawRecord: model.RawRecord{
				Source:      "news",
				Title:       "Acme raises Series B",
				URL:         "https://news.example.com/acme",
				PublishedAt: &published,
			},
			Score: 0.823,
		},
		{
			RawRecord: model.RawRecord{Source: "linkedin", Title: "Acme Corp"},
			Score:     0.671,
		},
	}

	var buf bytes.Buffer
	formatRecordsList(&buf, records)

	output := buf.String()
	assert.Contains(t, output, "news")
	assert.Contains(t, output, "0.823")
	assert.Contains(t, output, "2026-07-13")
	assert.Contains(t, output, "Acme raises Series B")
	assert.Contains(t, output, "https://news.example.com/acme")
	assert.Contains(t, output, "linkedin")
}

func TestFormatRecordsList_LongTitleTruncated(t *testing.T) {
	records := []model.ScoredRecord{
		{
			RawRecord: model.RawRecord{
				Source: "news",
				Title:  "An extremely long headline that should not blow out the table layout at all",
			},
			Score: 0.5,
		},
	}

	var buf bytes.Buffer
	formatRecordsList(&buf, records)

	assert.Contains(t, buf.String(), "...")
}
