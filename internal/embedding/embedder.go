// Package embedding provides text embedding backends and caching.
package embedding

import (
	"context"
	"errors"
)

// ErrModelUnavailable reports that the underlying embedding model cannot be
// reached. Callers must fail the request rather than substitute a zero
// vector.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder produces fixed-dimension vector embeddings for text. For a fixed
// model version the same text always yields the same vector; batching changes
// latency, never the vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
