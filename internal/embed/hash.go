package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Hash is a deterministic offline Engine: vectors are derived from an
// FNV-1a seed expanded with a linear congruential generator and normalized
// to unit length. The same text always yields the same vector, so cosine
// scores are stable across runs. It carries no semantic meaning and is
// meant for tests and air-gapped smoke runs, not production relevance.
type Hash struct {
	dim int
}

// NewHash creates a hash engine producing vectors of the given dimension.
func NewHash(dimension int) *Hash {
	if dimension < 1 {
		dimension = 384
	}
	return &Hash{dim: dimension}
}

// Embed returns a deterministic unit vector for the text.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return h.vector(text), nil
}

// EmbedBatch embeds each text independently.
func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (h *Hash) vector(text string) []float32 {
	hasher := fnv.New32a()
	hasher.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	seed := hasher.Sum32()

	vec := make([]float32, h.dim)
	var sumSquares float64
	for i := range vec {
		seed = seed*1664525 + 1013904223 // LCG constants
		vec[i] = float32(seed%1000)/1000.0 - 0.5
		sumSquares += float64(vec[i]) * float64(vec[i])
	}

	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}
