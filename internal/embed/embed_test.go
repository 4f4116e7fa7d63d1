package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	engine := NewHash(64)
	ctx := context.Background()

	a, err := engine.Embed(ctx, "Acme announces new funding round")
	require.NoError(t, err)
	b, err := engine.Embed(ctx, "Acme announces new funding round")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHash_DistinctTextsDiffer(t *testing.T) {
	engine := NewHash(64)
	ctx := context.Background()

	a, err := engine.Embed(ctx, "cybersecurity breach at vendor")
	require.NoError(t, err)
	b, err := engine.Embed(ctx, "quarterly revenue report")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHash_UnitNorm(t *testing.T) {
	engine := NewHash(128)
	vec, err := engine.Embed(context.Background(), "some text")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 0.001)
}

func TestHash_EmptyInput(t *testing.T) {
	engine := NewHash(64)
	_, err := engine.Embed(context.Background(), "   \n\t")
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = engine.EmbedBatch(context.Background(), []string{"ok", ""})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestHash_BatchMatchesSingle(t *testing.T) {
	engine := NewHash(32)
	ctx := context.Background()

	texts := []string{"first", "second", "third"}
	batch, err := engine.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := engine.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	engine, err := New("hash", "", "", "", 64)
	require.NoError(t, err)
	assert.IsType(t, &Hash{}, engine)

	_, err = New("tensor", "", "", "", 0)
	require.Error(t, err)
}

func TestHash_DimensionDefault(t *testing.T) {
	engine := NewHash(0)
	vec, err := engine.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}
