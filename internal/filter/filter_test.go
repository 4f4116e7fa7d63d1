package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-ingest/internal/embed"
	"github.com/sells-group/signal-ingest/internal/model"
)

// fixedEngine returns canned vectors keyed by text, so tests control scores
// exactly. Unknown texts fail.
type fixedEngine struct {
	vectors map[string][]float32
	err     error
	// failTexts makes specific texts fail with err while others succeed.
	failTexts map[string]bool
	batchErr  error
	calls     int
}

func (f *fixedEngine) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil || f.failTexts[text] {
		if f.err != nil {
			return nil, f.err
		}
		return nil, embed.ErrBackendUnavailable
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, embed.ErrBackendUnavailable
	}
	return vec, nil
}

func (f *fixedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func records(titles ...string) []model.RawRecord {
	out := make([]model.RawRecord, len(titles))
	for i, title := range titles {
		out[i] = model.RawRecord{Source: "news", Title: title}
	}
	return out
}

func TestFilter_ThresholdInclusive(t *testing.T) {
	// ref = (1,0). 3-4-5 triangles keep the arithmetic exact: "exact"
	// scores 3/5 = 0.6, precisely the threshold, and must be kept.
	engine := &fixedEngine{vectors: map[string][]float32{
		"query": {1, 0},
		"high":  {4, 3},     // cos = 0.8
		"exact": {3, 4},     // cos = 0.6
		"below": {2.999, 4}, // cos ≈ 0.59987
	}}
	f := New(engine, 0.6, 0, 1)

	accepted, stats, err := f.Filter(context.Background(), records("high", "exact", "below"), "query")
	require.NoError(t, err)

	require.Len(t, accepted, 2)
	assert.Equal(t, "high", accepted[0].Title)
	assert.Equal(t, "exact", accepted[1].Title)
	assert.Equal(t, 0.6, accepted[1].Score)
	assert.Equal(t, Stats{Scored: 3, Accepted: 2, Rejected: 1}, stats)
}

func TestFilter_OrderPreserved(t *testing.T) {
	engine := embed.NewHash(64)
	f := New(engine, -1, 0, 1) // accept everything; only order matters here

	recs := records("alpha", "beta", "gamma", "delta")
	accepted, _, err := f.Filter(context.Background(), recs, "reference")
	require.NoError(t, err)

	// Output must be a subsequence of the input order.
	pos := 0
	for _, got := range accepted {
		found := false
		for ; pos < len(recs); pos++ {
			if recs[pos].Title == got.Title {
				found = true
				pos++
				break
			}
		}
		assert.True(t, found, "record %q out of order", got.Title)
	}
}

func TestFilter_Idempotent(t *testing.T) {
	engine := embed.NewHash(64)
	f := New(engine, -1, 0, 1) // accept all: scores are always >= -1

	recs := records("alpha", "beta", "gamma")
	first, stats1, err := f.Filter(context.Background(), recs, "reference")
	require.NoError(t, err)
	second, stats2, err := f.Filter(context.Background(), recs, "reference")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, stats1, stats2)
}

func TestFilter_EmptyTextRejectedNotErrored(t *testing.T) {
	engine := embed.NewHash(64)
	f := New(engine, -1, 0, 1)

	recs := []model.RawRecord{
		{Source: "news", Title: "real story", Body: "content"},
		{Source: "news", Title: "  ", Body: "\n"},
	}
	accepted, stats, err := f.Filter(context.Background(), recs, "reference")
	require.NoError(t, err)

	require.Len(t, accepted, 1)
	assert.Equal(t, "real story", accepted[0].Title)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 0, stats.Failed)
}

func TestFilter_ReferenceEmbedFailureIsFatal(t *testing.T) {
	engine := &fixedEngine{err: embed.ErrBackendUnavailable}
	f := New(engine, 0.5, 0, 2)

	_, _, err := f.Filter(context.Background(), records("story"), "query")
	require.ErrorIs(t, err, embed.ErrBackendUnavailable)
	// Retried up to the attempt count.
	assert.Equal(t, 2, engine.calls)
}

func TestFilter_RecordEmbedFailureCountedNotFatal(t *testing.T) {
	engine := &fixedEngine{
		vectors: map[string][]float32{
			"query": {1, 0},
			"good":  {1, 0},
		},
		failTexts: map[string]bool{"bad": true},
		batchErr:  embed.ErrBackendUnavailable,
	}
	f := New(engine, 0.5, 0, 2)

	accepted, stats, err := f.Filter(context.Background(), records("good", "bad"), "query")
	require.NoError(t, err)

	require.Len(t, accepted, 1)
	assert.Equal(t, "good", accepted[0].Title)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Accepted)
}

func TestFilter_TruncationBoundsEmbeddedText(t *testing.T) {
	var seen string
	probe := probeEngine{
		inner:   embed.NewHash(16),
		onEmbed: func(text string) { seen = text },
	}

	f := New(probe, -1, 10, 1)
	long := records("abcdefghijKLMNOP")
	_, _, err := f.Filter(context.Background(), long, "ref")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", seen)
}

func TestFilter_NoRecords(t *testing.T) {
	f := New(embed.NewHash(16), 0.5, 0, 1)
	accepted, stats, err := f.Filter(context.Background(), nil, "query")
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Equal(t, Stats{}, stats)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, cosine(nil, nil))
}

// probeEngine records the last text embedded after the reference query.
type probeEngine struct {
	inner   *embed.Hash
	onEmbed func(text string)
}

func (p probeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.inner.Embed(ctx, text)
}

func (p probeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		p.onEmbed(text)
	}
	return p.inner.EmbedBatch(ctx, texts)
}
