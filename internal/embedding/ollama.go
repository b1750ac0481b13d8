package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/ollama"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OllamaEmbedder produces embeddings through an Ollama-compatible server.
type OllamaEmbedder struct {
	client     *ollama.Client
	model      string
	dimensions int
	cache      *EmbeddingCache
}

// NewOllamaEmbedder creates an embedder for the given model. dimensions must
// match the model's output dimensionality; every returned vector is checked
// against it. cacheSize bounds the per-text LRU cache.
func NewOllamaEmbedder(client *ollama.Client, model string, dimensions, cacheSize int) (*OllamaEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &OllamaEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		cache:      NewEmbeddingCache(cacheSize),
	}, nil
}

// Embed returns the embedding for text, using the cache when available.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one request. Uncached failures are reported as
// ErrModelUnavailable so callers can distinguish a down model from bad input.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embs, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	for i, emb := range embs {
		if len(emb) != e.dimensions {
			return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", e.model, len(emb), e.dimensions)
		}
		utils.NormalizeL2(emb)
		e.cache.Set(texts[i], emb)
	}
	return embs, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client has no persistent resources.
func (e *OllamaEmbedder) Close() error {
	return nil
}
