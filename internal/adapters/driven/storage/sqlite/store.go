package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Store opens the pre-ingested document database read-only.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the document database in the specified data directory.
// If dataDir is empty, defaults to ~/.parley/data/documents.db.
// Fails when the chunks table does not exist: ingestion must run first.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".parley", "data")
	}

	dbPath := filepath.Join(dataDir, "documents.db")
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("document database %s: %w", dbPath, err)
	}

	// WAL mode plays well with the external ingestion process holding the
	// write side.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// checkSchema verifies the chunk table exists. The schema is owned by the
// ingestion process, so it is asserted here rather than migrated.
func (s *Store) checkSchema() error {
	var name string
	row := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunks'")
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chunks table %w: run ingestion first", domain.ErrNotFound)
		}
		return fmt.Errorf("checking schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentReader returns a DocumentReader interface backed by this store.
func (s *Store) DocumentReader() driven.DocumentReader {
	return &documentReader{store: s}
}

// documentReader implements driven.DocumentReader over the chunks table.
type documentReader struct {
	store *Store
}

// Ensure documentReader implements the interface.
var _ driven.DocumentReader = (*documentReader)(nil)

// ListRecords scans the chunks table in rowid order, which is the stable
// scan order used for similarity tie-breaking. Malformed embedding blobs
// decode to nil and are skipped downstream as dimension mismatches.
func (r *documentReader) ListRecords(ctx context.Context, collection string) ([]domain.DocumentRecord, error) {
	query := `
		SELECT id, collection, content, embedding, metadata
		FROM chunks`
	args := []any{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY rowid"

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var records []domain.DocumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return records, nil
}

// Count returns the number of chunks, optionally filtered by collection.
func (r *documentReader) Count(ctx context.Context, collection string) (int, error) {
	query := "SELECT COUNT(*) FROM chunks"
	args := []any{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}

	var count int
	row := r.store.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// scanRecord reads one chunk row into a domain record.
func scanRecord(rows *sql.Rows) (domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var collection sql.NullString
	var embeddingBlob []byte
	var metadataJSON sql.NullString

	if err := rows.Scan(&rec.ID, &collection, &rec.Content, &embeddingBlob, &metadataJSON); err != nil {
		return rec, fmt.Errorf("scanning chunk: %w", err)
	}

	rec.Collection = collection.String
	rec.Embedding = domain.DecodeEmbedding(embeddingBlob)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("unmarshalling metadata for chunk %s: %w", rec.ID, err)
		}
	}

	return rec, nil
}
