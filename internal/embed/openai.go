package embed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAI is an Engine backed by an OpenAI-compatible embeddings endpoint
// (hosted API or a local server such as Ollama). Stateless across calls
// apart from the underlying HTTP connection pool.
type OpenAI struct {
	embedder embeddings.Embedder
	model    string
}

// NewOpenAI creates an engine for the given host and model. key may be
// empty for local endpoints that skip authentication.
func NewOpenAI(host, key, model string) (*OpenAI, error) {
	if key == "" {
		// langchaingo requires a token even for unauthenticated servers.
		key = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(key),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}

	zap.L().Info("embed: openai engine ready",
		zap.String("host", host),
		zap.String("model", model),
	)
	return &OpenAI{embedder: embedder, model: model}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one provider call.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		// The provider being unreachable and the provider erroring are
		// indistinguishable through langchaingo; both are retryable here.
		return nil, eris.Wrap(ErrBackendUnavailable, err.Error())
	}
	if len(vecs) != len(texts) {
		return nil, eris.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
