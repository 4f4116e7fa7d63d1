// Package filter scores fetched records for semantic relevance against a
// reference query and keeps the ones above a configured threshold.
package filter

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-ingest/internal/embed"
	"github.com/sells-group/signal-ingest/internal/model"
	"github.com/sells-group/signal-ingest/internal/resilience"
)

// Stats summarizes one filtering pass.
type Stats struct {
	Scored   int `json:"scored"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Engine filters records by cosine similarity between their text and a
// reference query, both embedded through the injected embed.Engine.
type Engine struct {
	embed     embed.Engine
	threshold float64
	maxChars  int
	retry     resilience.RetryConfig
}

// New creates a filter engine. threshold is the inclusive relevance bound in
// [0,1]; maxChars truncates embedded record text to bound cost; retries is
// the attempt count for embedding calls that fail with a retryable error.
func New(engine embed.Engine, threshold float64, maxChars, retries int) *Engine {
	// Backend outages are marked retryable by the embed package itself, so
	// the default transient check is enough here.
	retry := resilience.FromRetryConfig(retries, 200, 5000, 2.0, 0.2)
	retry.OnRetry = resilience.RetryLogger("embed", "embed")
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Engine{
		embed:     engine,
		threshold: threshold,
		maxChars:  maxChars,
		retry:     retry,
	}
}

// Filter scores records against referenceQuery and returns the ones with
// similarity >= threshold, preserving input order. Records whose embeddable
// text is empty are rejected (counted, not errored); records whose embedding
// fails after retries are counted as failed. Only an unusable reference
// query fails the whole call.
func (e *Engine) Filter(ctx context.Context, records []model.RawRecord, referenceQuery string) ([]model.ScoredRecord, Stats, error) {
	var stats Stats
	if len(records) == 0 {
		return nil, stats, nil
	}

	refVec, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]float32, error) {
		return e.embed.Embed(ctx, referenceQuery)
	})
	if err != nil {
		return nil, stats, eris.Wrap(err, "filter: embed reference query")
	}

	// Index the records that have embeddable text; empties are rejected
	// outright rather than erroring the pass.
	texts := make([]string, 0, len(records))
	indices := make([]int, 0, len(records))
	for i, rec := range records {
		text := e.truncate(rec.Text())
		if text == "" {
			stats.Rejected++
			continue
		}
		texts = append(texts, text)
		indices = append(indices, i)
	}
	if len(texts) == 0 {
		return nil, stats, nil
	}

	vectors := e.embedAll(ctx, texts, &stats)

	accepted := make([]model.ScoredRecord, 0, len(indices))
	for pos, recIdx := range indices {
		vec := vectors[pos]
		if vec == nil {
			continue // embedding failed, already counted
		}
		score := cosine(vec, refVec)
		stats.Scored++

		rec := records[recIdx]
		if score >= e.threshold {
			stats.Accepted++
			accepted = append(accepted, model.ScoredRecord{
				RawRecord: rec,
				Score:     score,
				Embedding: vec,
			})
		} else {
			stats.Rejected++
		}
		zap.L().Debug("filter: record scored",
			zap.String("source", rec.Source),
			zap.String("title", rec.Title),
			zap.Float64("score", score),
			zap.Bool("accepted", score >= e.threshold),
		)
	}

	return accepted, stats, nil
}

// embedAll embeds all texts, batch first for engines that support it, then
// per-text with retry for anything the batch could not produce. Failed slots
// stay nil and are tallied in stats.
func (e *Engine) embedAll(ctx context.Context, texts []string, stats *Stats) [][]float32 {
	vectors, err := e.embed.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors
	}

	zap.L().Warn("filter: batch embedding failed, falling back to per-record",
		zap.Int("records", len(texts)),
		zap.Error(err),
	)

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		vec, embedErr := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]float32, error) {
			return e.embed.Embed(ctx, text)
		})
		if embedErr != nil {
			stats.Failed++
			zap.L().Warn("filter: record embedding failed",
				zap.Int("index", i),
				zap.Error(embedErr),
			)
			continue
		}
		vectors[i] = vec
	}
	return vectors
}

func (e *Engine) truncate(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= e.maxChars {
		return text
	}
	cut := text[:e.maxChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
