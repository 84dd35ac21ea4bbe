package domain

import "fmt"

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// TopK is the maximum number of results to return. Must be > 0.
	TopK int

	// Threshold is the minimum cosine similarity, in [-1, 1].
	Threshold float64

	// Collection filters the scan to a single collection when non-empty.
	Collection string
}

// Validate checks the option ranges.
func (o SearchOptions) Validate() error {
	if o.TopK <= 0 {
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidInput, o.TopK)
	}
	if o.Threshold < -1 || o.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [-1, 1], got %g", ErrInvalidInput, o.Threshold)
	}
	return nil
}

// SearchResult is a document record paired with its similarity to a query.
// Created fresh per query and discarded after use.
type SearchResult struct {
	// Record is the matched document record.
	Record DocumentRecord

	// Similarity is the cosine similarity score in [-1, 1].
	Similarity float64
}
