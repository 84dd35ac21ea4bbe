package driving

import (
	"context"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// RetrievalService turns a text query into a bounded context window of the
// most semantically similar stored documents.
type RetrievalService interface {
	// Initialize loads and verifies the embedding model and document store.
	// Idempotent: if already initialized it returns immediately; if another
	// initialization is in progress the caller waits for it instead of
	// starting a second one. On failure the service returns to the
	// uninitialized state so a later call can retry.
	Initialize(ctx context.Context) error

	// Ready reports whether Initialize has completed successfully.
	Ready() bool

	// Retrieve embeds the query, scans for similar documents, and assembles
	// a context window no longer than maxContextLength characters.
	// Fails with domain.ErrNotInitialized before Initialize succeeds.
	Retrieve(ctx context.Context, query string, opts domain.SearchOptions, maxContextLength int) (*domain.RetrievalOutcome, error)
}
