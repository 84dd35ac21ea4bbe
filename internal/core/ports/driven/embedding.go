package driven

import "context"

// EmbeddingBackend generates vector embeddings from text.
//
// Note: backends return pre-pooled vectors; L2 normalisation is applied by
// the core, not the backend.
//
// Implementations may include:
//   - Ollama (nomic-embed-text, all-minilm)
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Local models via inference servers
type EmbeddingBackend interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	// This is determined by the model and must match the stored embeddings.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test
	// request. Used during initialization to verify the model is loaded
	// before committing to readiness.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
