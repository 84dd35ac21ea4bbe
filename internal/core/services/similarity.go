package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// SimilarityIndex finds the stored documents most similar to a query vector.
//
// This is a full linear scan on every query. At on-device collection sizes
// that favours simplicity and correctness over scale; larger corpora should
// swap an approximate nearest-neighbour index in behind the same Search
// contract without changing callers.
type SimilarityIndex struct {
	docs driven.DocumentReader
}

// NewSimilarityIndex creates an index over the given document reader.
func NewSimilarityIndex(docs driven.DocumentReader) *SimilarityIndex {
	return &SimilarityIndex{docs: docs}
}

// Search scans the collection and returns up to opts.TopK results with
// cosine similarity >= opts.Threshold, sorted by similarity descending.
// Ties keep the original scan order. Records whose stored embedding does
// not match the query dimension are skipped, never fatal.
func (x *SimilarityIndex) Search(
	ctx context.Context, query []float32, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}
	if x.docs == nil {
		return nil, domain.ErrBackendNotReady
	}

	records, err := x.docs.ListRecords(ctx, opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	logger.Debug("Similarity scan: %d candidates, topK=%d, threshold=%.2f",
		len(records), opts.TopK, opts.Threshold)

	var results []domain.SearchResult
	skipped := 0
	for i := range records {
		if len(records[i].Embedding) != len(query) {
			skipped++
			logger.Warn("Skipping record %s: %v (stored %d, query %d)",
				records[i].ID, domain.ErrDimensionMismatch, len(records[i].Embedding), len(query))
			continue
		}

		sim := domain.CosineSimilarity(query, records[i].Embedding)
		if sim >= opts.Threshold {
			results = append(results, domain.SearchResult{
				Record:     records[i],
				Similarity: sim,
			})
		}
	}

	if skipped > 0 {
		logger.Info("Similarity scan skipped %d malformed records", skipped)
	}

	// Stable sort keeps scan order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	logger.Debug("Similarity scan: %d results above threshold", len(results))
	return results, nil
}
