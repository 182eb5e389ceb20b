package rag_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/serisow/sagefemme/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgStore keeps documents in Postgres and chunk embeddings in a pgvector
// column. A nil pool makes every call fail with ErrStorageUnavailable.
type PgStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgStore(db *pgxpool.Pool, logger *slog.Logger) *PgStore {
	return &PgStore{
		db:     db,
		logger: logger,
	}
}

func (s *PgStore) IsAvailable() bool {
	return s != nil && s.db != nil
}

const documentColumns = `id::text, name, file_type, original_filename, uploaded_by, created_at, updated_at`

func (s *PgStore) InsertDocument(ctx context.Context, meta models.DocumentMeta, contentText string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	return insertDocument(ctx, s.db, meta, contentText)
}

func (s *PgStore) InsertChunks(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) error {
	if !s.IsAvailable() {
		return ErrStorageUnavailable
	}
	if err := checkAlignment(chunks, embeddings); err != nil {
		return err
	}
	return insertChunks(ctx, s.db, documentID, chunks, embeddings)
}

func (s *PgStore) CreateDocumentWithChunks(ctx context.Context, meta models.DocumentMeta, contentText string, chunks []string, embeddings [][]float32) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	if err := checkAlignment(chunks, embeddings); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := insertDocument(ctx, tx, meta, contentText)
	if err != nil {
		return nil, err
	}
	if err := insertChunks(ctx, tx, doc.ID, chunks, embeddings); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	doc.ChunkCount = len(chunks)
	return doc, nil
}

func insertDocument(ctx context.Context, q dbtx, meta models.DocumentMeta, contentText string) (*models.Document, error) {
	query := `INSERT INTO documents (name, file_type, original_filename, content_text, content_hash, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + documentColumns

	doc, err := scanDocument(q.QueryRow(ctx, query,
		meta.Name,
		meta.FileType,
		meta.OriginalFilename,
		contentText,
		nullableString(meta.ContentHash),
		nullableString(meta.UploadedBy),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	doc.ContentHash = meta.ContentHash
	return doc, nil
}

func insertChunks(ctx context.Context, q dbtx, documentID string, chunks []string, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(`INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
			VALUES ($1::uuid, $2, $3, $4::vector)`,
			documentID, i, chunk, pgvector.NewVector(embeddings[i]))
	}

	br := q.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

func (s *PgStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	rows, err := s.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *PgStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	if !validDocumentID(id) {
		return nil, ErrDocumentNotFound
	}

	var (
		doc  models.Document
		hash *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT d.id::text, d.name, d.file_type, d.original_filename, d.uploaded_by, d.created_at, d.updated_at,
			d.content_text, d.content_hash,
			(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)
		FROM documents d
		WHERE d.id = $1::uuid`, id).Scan(
		&doc.ID, &doc.Name, &doc.FileType, &doc.OriginalFilename, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt,
		&doc.ContentText, &hash, &doc.ChunkCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if hash != nil {
		doc.ContentHash = *hash
	}
	return &doc, nil
}

func (s *PgStore) FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	doc, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = $1 ORDER BY created_at LIMIT 1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	doc.ContentHash = hash
	return doc, nil
}

func (s *PgStore) DeleteDocument(ctx context.Context, id string) error {
	if !s.IsAvailable() {
		return ErrStorageUnavailable
	}
	if !validDocumentID(id) {
		s.logger.Debug("Ignoring delete for malformed document id", slog.String("document_id", id))
		return nil
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.logger.Info("Document deleted",
		slog.String("document_id", id),
		slog.Int64("rows_affected", tag.RowsAffected()))
	return nil
}

func (s *PgStore) SimilaritySearch(ctx context.Context, embedding []float32, limit int, documentIDs []string) ([]models.SearchResult, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	limit = normalizeLimit(limit)

	query, args := buildSimilarityQuery(pgvector.NewVector(embedding), limit, documentIDs)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, limit)
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.DocumentID, &r.DocumentName, &r.ChunkContent, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Similarity = clampSimilarity(r.Similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return results, nil
}

// buildSimilarityQuery ranks chunks by cosine distance. A document filter
// runs inside a materialized CTE, before the ordering, so it never goes
// through the ivfflat index, which only filters the rows of its probed lists.
func buildSimilarityQuery(embedding pgvector.Vector, limit int, documentIDs []string) (string, []any) {
	args := []any{embedding, limit}

	if len(documentIDs) == 0 {
		return `
		SELECT c.document_id::text, d.name, c.content, 1 - (c.embedding <=> $1::vector) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1::vector
		LIMIT $2`, args
	}

	args = append(args, documentIDs)
	return `
		WITH candidates AS MATERIALIZED (
			SELECT document_id, content, embedding
			FROM document_chunks
			WHERE document_id = ANY($3::uuid[])
		)
		SELECT c.document_id::text, d.name, c.content, 1 - (c.embedding <=> $1::vector) AS similarity
		FROM candidates c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1::vector
		LIMIT $2`, args
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	if err := row.Scan(&doc.ID, &doc.Name, &doc.FileType, &doc.OriginalFilename, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}
