package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyInput indicates a blank user message was submitted.
	ErrEmptyInput = errors.New("empty input")

	// ErrNotInitialized indicates the retrieval service was used before
	// Initialize completed successfully.
	ErrNotInitialized = errors.New("retrieval service not initialized")

	// ErrInitialization indicates the retrieval service failed to initialize.
	// The wrapped cause is the first failing step.
	ErrInitialization = errors.New("initialization failed")

	// ErrModelNotReady indicates the embedding model is not loaded or configured.
	ErrModelNotReady = errors.New("embedding model not ready")

	// ErrBackendNotReady indicates the generation backend or the retrieval
	// service is unavailable.
	ErrBackendNotReady = errors.New("backend not ready")

	// ErrGenerationInFlight indicates a generation is already running.
	// At most one generation is in flight per chat session.
	ErrGenerationInFlight = errors.New("generation already in flight")

	// ErrDimensionMismatch indicates a stored embedding does not match the
	// query vector dimension. Per-record and non-fatal: the offending record
	// is skipped, never the whole search.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInference indicates the embedding or generation backend failed
	// during computation.
	ErrInference = errors.New("inference failed")
)
