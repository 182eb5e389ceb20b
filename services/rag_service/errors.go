package rag_service

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction means the text extraction capability failed or is not configured.
	ErrExtraction = errors.New("text extraction failed")

	// ErrEmptyContent means the uploaded file yielded no usable text.
	ErrEmptyContent = errors.New("unable to extract text from the document")

	// ErrDocumentTooShort means chunking produced nothing indexable.
	ErrDocumentTooShort = errors.New("document too short to be indexed")

	// ErrEmbedding is matched by every *EmbeddingError.
	ErrEmbedding = errors.New("embedding failed")

	// ErrAlignment means chunks and embeddings do not pair up 1:1.
	ErrAlignment = errors.New("chunk and embedding counts differ")

	ErrInvalidQuery = errors.New("search query cannot be empty")
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable means no database is configured or reachable.
	ErrStorageUnavailable = errors.New("document storage unavailable")

	ErrDocumentNotFound = errors.New("document not found")

	// ErrGenerationUnavailable means no answer generator is configured.
	ErrGenerationUnavailable = errors.New("answer generation unavailable")
)

// Embedding stages reported by EmbeddingError.
const (
	StageConfig    = "config"
	StageQuery     = "query"
	StageBatch     = "batch"
	StageDimension = "dimension"
)

// EmbeddingError identifies which embedding call failed. Index is the
// position in the batch, or -1 for single-text calls.
type EmbeddingError struct {
	Stage string
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("embedding failed at %s stage (item %d): %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("embedding failed at %s stage: %v", e.Stage, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}
