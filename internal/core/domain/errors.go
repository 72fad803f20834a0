package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClassifierUnavailable indicates the topic classifier is not
	// configured. Segmentation cannot run without one.
	ErrClassifierUnavailable = errors.New("topic classifier unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Indexing and retrieval are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates a similarity query met a stored
	// vector of a different dimension, i.e. chunks embedded by a
	// different provider leaked into the retrieval pool.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrDocumentNotChunked indicates an operation needed chunks but the
	// document has not been segmented yet.
	ErrDocumentNotChunked = errors.New("document not chunked")

	// ErrSegmentationFailed wraps any failure during a segmentation run.
	// The document is left with chunking status "failed" and no partial
	// chunk data; callers retry the whole run.
	ErrSegmentationFailed = errors.New("segmentation failed")

	// ErrEmbeddingBatch wraps an embedding batch failure. Chunks in the
	// failed batch are marked "failed"; later batches stay "pending".
	ErrEmbeddingBatch = errors.New("embedding batch failed")
)
