package services

import (
	"context"
	"fmt"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// Embedder turns raw text into L2-normalised query vectors.
//
// Pooling policy: the backend returns one pre-pooled vector per input and the
// embedder normalises it unconditionally. A zero vector stays zero.
type Embedder struct {
	backend driven.EmbeddingBackend
}

// NewEmbedder creates an embedder over the given backend.
func NewEmbedder(backend driven.EmbeddingBackend) *Embedder {
	return &Embedder{backend: backend}
}

// Ready reports whether an embedding backend is configured.
func (e *Embedder) Ready() bool {
	return e.backend != nil
}

// Embed generates a normalised embedding for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.backend == nil {
		return nil, domain.ErrModelNotReady
	}

	vec, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInference, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: backend returned empty vector", domain.ErrInference)
	}

	if dims := e.backend.Dimensions(); dims > 0 && len(vec) != dims {
		logger.Warn("Embedding backend returned %d dimensions, expected %d", len(vec), dims)
	}

	return domain.Normalize(vec), nil
}
