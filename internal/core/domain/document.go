package domain

// DocumentRecord is a pre-ingested text chunk with its embedding.
// Records are created by an external ingestion process and are read-only
// from Parley's perspective.
type DocumentRecord struct {
	// ID is the unique, stable identifier for the chunk.
	ID string

	// Content is the text of the chunk.
	Content string

	// Embedding is the stored vector representation, dimension D.
	// Nil when the stored blob was malformed.
	Embedding []float32

	// Metadata contains arbitrary key-value pairs from ingestion.
	Metadata map[string]any

	// Collection is an optional logical grouping label.
	Collection string
}
