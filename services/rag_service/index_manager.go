package rag_service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	chunkIndexName = "idx_document_chunks_embedding"

	// Below this many chunks an exact scan is both fast and exact, so no
	// approximate index is kept.
	minIndexedChunks = 1000
	minLists         = 10
)

// IndexManager keeps the ivfflat index on document_chunks.embedding sized
// to the chunk population.
type IndexManager struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewIndexManager(db *pgxpool.Pool, logger *slog.Logger) *IndexManager {
	return &IndexManager{
		db:     db,
		logger: logger,
	}
}

// OptimalLists returns the ivfflat list count for count chunks, or 0 when
// no index should exist.
func OptimalLists(count int) int {
	if count < minIndexedChunks {
		return 0
	}
	lists := int(math.Sqrt(float64(count)))
	if lists < minLists {
		lists = minLists
	}
	return lists
}

// CreateOrUpdateIndex drops and rebuilds the vector index.
func (im *IndexManager) CreateOrUpdateIndex(ctx context.Context) error {
	if im.db == nil {
		return ErrStorageUnavailable
	}

	count, err := im.countChunks(ctx)
	if err != nil {
		return err
	}

	if _, err := im.db.Exec(ctx, "DROP INDEX IF EXISTS "+chunkIndexName); err != nil {
		return fmt.Errorf("failed to drop existing index: %w", err)
	}

	lists := OptimalLists(count)
	if lists == 0 {
		im.logger.Info("Chunk population too small for a vector index",
			slog.Int("chunk_count", count))
		return nil
	}

	createIndexSQL := fmt.Sprintf(`
		CREATE INDEX %s
		ON document_chunks
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)
	`, chunkIndexName, lists)

	if _, err := im.db.Exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	im.logger.Info("Vector index created/updated successfully",
		slog.Int("chunk_count", count),
		slog.Int("list_count", lists))

	return nil
}

// ReindexIfNeeded rebuilds the index when its list count is off by more
// than half from the optimal one, or when it is missing.
func (im *IndexManager) ReindexIfNeeded(ctx context.Context) error {
	if im.db == nil {
		return ErrStorageUnavailable
	}

	count, err := im.countChunks(ctx)
	if err != nil {
		return err
	}
	optimalLists := OptimalLists(count)

	var currentLists int
	err = im.db.QueryRow(ctx, `
		SELECT split_part(opt, '=', 2)::int
		FROM pg_class c, unnest(c.reloptions) AS opt
		WHERE c.relname = $1 AND opt LIKE 'lists=%'
	`, chunkIndexName).Scan(&currentLists)
	if err != nil {
		if optimalLists == 0 {
			return nil
		}
		return im.CreateOrUpdateIndex(ctx)
	}

	if needsRebuild(currentLists, optimalLists) {
		im.logger.Info("Rebuilding vector index due to significant size change",
			slog.Int("current_lists", currentLists),
			slog.Int("optimal_lists", optimalLists))
		return im.CreateOrUpdateIndex(ctx)
	}

	return nil
}

func needsRebuild(currentLists, optimalLists int) bool {
	if optimalLists == 0 {
		return currentLists != 0
	}
	return math.Abs(float64(currentLists-optimalLists)) > float64(optimalLists)*0.5
}

func (im *IndexManager) countChunks(ctx context.Context) (int, error) {
	var count int
	if err := im.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
