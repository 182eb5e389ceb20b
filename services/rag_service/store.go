package rag_service

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/serisow/sagefemme/models"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// DocumentStore persists documents with their embedded chunks and answers
// nearest-neighbour queries over the chunks. Every method returns
// ErrStorageUnavailable when the backend is not configured.
type DocumentStore interface {
	IsAvailable() bool
	// InsertDocument stores contentText but returns metadata only; the text
	// is read back with GetDocument.
	InsertDocument(ctx context.Context, meta models.DocumentMeta, contentText string) (*models.Document, error)
	InsertChunks(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) error
	// CreateDocumentWithChunks writes the document and all of its chunks
	// atomically.
	CreateDocumentWithChunks(ctx context.Context, meta models.DocumentMeta, contentText string, chunks []string, embeddings [][]float32) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error)
	// DeleteDocument removes a document and its chunks. Unknown or malformed
	// ids are a no-op.
	DeleteDocument(ctx context.Context, id string) error
	// SimilaritySearch ranks chunks by cosine distance. limit follows
	// normalizeLimit and similarities are clamped to [0,1] after ranking.
	SimilaritySearch(ctx context.Context, embedding []float32, limit int, documentIDs []string) ([]models.SearchResult, error)
}

func checkAlignment(chunks []string, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return ErrAlignment
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func validDocumentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func clampSimilarity(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
