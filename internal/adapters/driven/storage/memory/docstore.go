// Package memory provides in-memory storage adapters for tests and demos.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
)

// Ensure DocumentReader implements the interface.
var _ driven.DocumentReader = (*DocumentReader)(nil)

// DocumentReader is an in-memory implementation of driven.DocumentReader.
// Records keep insertion order, which is the stable scan order the
// similarity index relies on for tie-breaking.
type DocumentReader struct {
	mu      sync.RWMutex
	records []domain.DocumentRecord
}

// NewDocumentReader creates a new in-memory document reader.
func NewDocumentReader() *DocumentReader {
	return &DocumentReader{}
}

// Add appends records, assigning a fresh ID to any record without one.
func (r *DocumentReader) Add(records ...domain.DocumentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		r.records = append(r.records, rec)
	}
}

// ListRecords returns records in insertion order, optionally filtered.
func (r *DocumentReader) ListRecords(_ context.Context, collection string) ([]domain.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DocumentRecord, 0, len(r.records))
	for _, rec := range r.records {
		if collection != "" && rec.Collection != collection {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of records, optionally filtered.
func (r *DocumentReader) Count(_ context.Context, collection string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if collection == "" {
		return len(r.records), nil
	}
	n := 0
	for _, rec := range r.records {
		if rec.Collection == collection {
			n++
		}
	}
	return n, nil
}
