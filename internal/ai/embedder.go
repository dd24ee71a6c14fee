package ai

import "context"

// Embedder turns text into vectors. Model reports the pinned model
// identifier recorded alongside every indexed chunk; the index refuses to
// serve vectors produced by a different model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// APIEmbedder binds the OpenAI-compatible embedding endpoints to the
// Embedder interface.
type APIEmbedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewAPIEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *APIEmbedder {
	return &APIEmbedder{client: client, cfg: cfg}
}

func (e *APIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.cfg, text)
}

func (e *APIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, e.cfg, texts)
}

func (e *APIEmbedder) Model() string {
	return e.cfg.Model
}
