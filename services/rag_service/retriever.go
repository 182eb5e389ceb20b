package rag_service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/serisow/sagefemme/models"
)

// Retriever embeds a query and returns the closest stored chunks.
type Retriever struct {
	store    DocumentStore
	embedder Embedder
	logger   *slog.Logger
}

func NewRetriever(store DocumentStore, embedder Embedder, logger *slog.Logger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Search returns at most limit results ordered by descending similarity.
// limit <= 0 means DefaultSearchLimit; values above MaxSearchLimit are
// capped. documentIDs, when non-empty, restricts the search to those
// documents.
func (r *Retriever) Search(ctx context.Context, query string, limit int, documentIDs []string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	for _, id := range documentIDs {
		if !validDocumentID(id) {
			return nil, fmt.Errorf("%w: malformed document id %q", ErrInvalidInput, id)
		}
	}
	if r.store == nil || !r.store.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	limit = normalizeLimit(limit)

	start := time.Now()
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Error("Failed to generate embedding for search query",
			slog.String("error", err.Error()))
		return nil, err
	}

	results, err := r.store.SimilaritySearch(ctx, embedding, limit, documentIDs)
	if err != nil {
		r.logger.Error("Failed to execute similarity search",
			slog.String("error", err.Error()))
		return nil, err
	}

	r.logger.Debug("Search completed",
		slog.Int("limit", limit),
		slog.Int("document_filter", len(documentIDs)),
		slog.Int("result_count", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}
