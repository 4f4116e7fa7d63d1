// Package embed converts free text into fixed-dimension vectors for
// similarity comparison. Engines are deterministic for identical input and
// safe for concurrent use; pick an implementation at construction time.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrEmptyInput is returned when the text is empty after trimming whitespace.
var ErrEmptyInput = eris.New("embed: empty input")

// backendUnavailable marks provider outages as retryable for the
// resilience package's transient check.
type backendUnavailable struct{}

func (backendUnavailable) Error() string   { return "embed: backend unavailable" }
func (backendUnavailable) Retryable() bool { return true }

// ErrBackendUnavailable is returned when the backing provider cannot be
// reached. Retry policy treats it as transient up to the configured
// attempt count.
var ErrBackendUnavailable error = backendUnavailable{}

// Engine generates embeddings for text.
type Engine interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds an Engine for the named provider: "openai" for an
// OpenAI-compatible endpoint, "hash" for the deterministic offline engine.
func New(provider, host, key, model string, dimension int) (Engine, error) {
	switch provider {
	case "openai", "":
		return NewOpenAI(host, key, model)
	case "hash":
		return NewHash(dimension), nil
	default:
		return nil, eris.Errorf("embed: unknown provider %q", provider)
	}
}
