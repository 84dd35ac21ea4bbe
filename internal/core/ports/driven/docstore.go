package driven

import (
	"context"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// DocumentReader provides read-only access to the pre-ingested chunk table.
// Backed by SQLite; records are written by an external ingestion process and
// never mutated or deleted here.
type DocumentReader interface {
	// ListRecords returns all document records, optionally filtered to a
	// single collection when collection is non-empty. The returned order is
	// the stable scan order used for similarity tie-breaking.
	ListRecords(ctx context.Context, collection string) ([]domain.DocumentRecord, error)

	// Count returns the number of records available, with the same optional
	// collection filter. Used as a readiness probe and for logging.
	Count(ctx context.Context, collection string) (int, error)
}
