package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driving"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// initState tracks the retrieval service lifecycle.
type initState int

const (
	stateUninitialized initState = iota
	stateInitializing
	stateReady
)

// RetrievalService composes the embedder, the similarity index, and the
// context assembler into a single retrieve(query) -> context operation.
//
// Initialization is serialised: the first caller does the work, concurrent
// callers wait on a one-shot done channel for that attempt's outcome, and a
// failed attempt returns the service to uninitialized so it can be retried.
type RetrievalService struct {
	embedding driven.EmbeddingBackend
	docs      driven.DocumentReader

	embedder  *Embedder
	index     *SimilarityIndex
	assembler *ContextAssembler

	mu       sync.Mutex
	state    initState
	initDone chan struct{}
	initErr  error
}

// NewRetrievalService creates a retrieval service over the given backends.
func NewRetrievalService(docs driven.DocumentReader, embedding driven.EmbeddingBackend) *RetrievalService {
	return &RetrievalService{
		embedding: embedding,
		docs:      docs,
		embedder:  NewEmbedder(embedding),
		index:     NewSimilarityIndex(docs),
		assembler: NewContextAssembler(),
	}
}

// Initialize verifies the embedding backend and document store are usable.
func (s *RetrievalService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateReady:
		s.mu.Unlock()
		return nil

	case stateInitializing:
		// Another caller is initializing; wait for its outcome instead of
		// starting a second attempt.
		done := s.initDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		err := s.initErr
		s.mu.Unlock()
		return err

	case stateUninitialized:
	}

	s.state = stateInitializing
	s.initDone = make(chan struct{})
	done := s.initDone
	s.mu.Unlock()

	logger.Section("Retrieval Initialization")
	err := s.doInitialize(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = stateUninitialized
		s.initErr = fmt.Errorf("%w: %v", domain.ErrInitialization, err)
		logger.Warn("Initialization failed: %v", err)
	} else {
		s.state = stateReady
		s.initErr = nil
		logger.Info("Retrieval service ready")
	}
	result := s.initErr
	close(done)
	s.mu.Unlock()

	return result
}

// doInitialize performs the expensive readiness checks.
func (s *RetrievalService) doInitialize(ctx context.Context) error {
	if s.embedding == nil {
		return errors.New("embedding backend not configured")
	}
	if s.docs == nil {
		return errors.New("document store not configured")
	}

	// Pinging the embedding backend is what forces the model load on local
	// inference servers, so it doubles as the "model loaded" wait.
	logger.Debug("Pinging embedding backend (%s)", s.embedding.ModelName())
	if err := s.embedding.Ping(ctx); err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}

	count, err := s.docs.Count(ctx, "")
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	logger.Info("Document store ready: %d chunks", count)

	return nil
}

// Ready reports whether the service has initialized successfully.
func (s *RetrievalService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// Retrieve embeds the query, searches the collection, and assembles a
// bounded context window from the results.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.SearchOptions, maxContextLength int,
) (*domain.RetrievalOutcome, error) {
	if !s.Ready() {
		return nil, domain.ErrNotInitialized
	}

	logger.Section("Retrieval")
	logger.Debug("Query: %q", query)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.index.Search(ctx, vec, opts)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	outcome, err := s.assembler.Assemble(results, maxContextLength)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	logger.Info("Retrieved %d/%d documents, context %d chars",
		len(outcome.DocumentsUsed), outcome.TotalDocumentsFound, outcome.ContextLength)
	return outcome, nil
}
