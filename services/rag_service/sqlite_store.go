package rag_service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/serisow/sagefemme/models"
)

// Fixed width so that timestamps sort lexically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore keeps a single practice's library in one SQLite file.
// Embeddings are stored as JSON and ranked in process by cosine similarity.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	logger    *slog.Logger
	now       func() time.Time
}

// NewSQLiteStore wraps an opened database. A positive dimension makes
// writes reject embeddings of any other length.
func NewSQLiteStore(db *sql.DB, dimension int, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:        db,
		dimension: dimension,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SQLiteStore) IsAvailable() bool {
	return s != nil && s.db != nil
}

func (s *SQLiteStore) InsertDocument(ctx context.Context, meta models.DocumentMeta, contentText string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	return s.insertDocument(ctx, s.db, meta, contentText)
}

func (s *SQLiteStore) InsertChunks(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) error {
	if !s.IsAvailable() {
		return ErrStorageUnavailable
	}
	if err := checkAlignment(chunks, embeddings); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertChunks(ctx, tx, documentID, chunks, embeddings); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateDocumentWithChunks(ctx context.Context, meta models.DocumentMeta, contentText string, chunks []string, embeddings [][]float32) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	if err := checkAlignment(chunks, embeddings); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := s.insertDocument(ctx, tx, meta, contentText)
	if err != nil {
		return nil, err
	}
	if err := s.insertChunks(ctx, tx, doc.ID, chunks, embeddings); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	doc.ChunkCount = len(chunks)
	return doc, nil
}

func (s *SQLiteStore) insertDocument(ctx context.Context, q sqlExecer, meta models.DocumentMeta, contentText string) (*models.Document, error) {
	now := s.now().UTC()
	doc := &models.Document{
		ID:               uuid.NewString(),
		Name:             meta.Name,
		FileType:         meta.FileType,
		OriginalFilename: meta.OriginalFilename,
		ContentHash:      meta.ContentHash,
		UploadedBy:       nullableString(meta.UploadedBy),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := q.ExecContext(ctx, `INSERT INTO documents
		(id, name, file_type, original_filename, content_text, content_hash, uploaded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.FileType, doc.OriginalFilename, contentText,
		nullableString(meta.ContentHash), doc.UploadedBy,
		now.Format(sqliteTimeFormat), now.Format(sqliteTimeFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) insertChunks(ctx context.Context, q sqlExecer, documentID string, chunks []string, embeddings [][]float32) error {
	for i, chunk := range chunks {
		if s.dimension > 0 && len(embeddings[i]) != s.dimension {
			return fmt.Errorf("failed to store chunk %d: expected %d dimensions, got %d", i, s.dimension, len(embeddings[i]))
		}
		vec, err := json.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("failed to encode embedding %d: %w", i, err)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
			VALUES (?, ?, ?, ?)`, documentID, i, chunk, string(vec)); err != nil {
			return fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, file_type, original_filename, uploaded_by, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var (
			doc                  models.Document
			uploadedBy           sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.FileType, &doc.OriginalFilename, &uploadedBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		setSQLiteFields(&doc, uploadedBy, createdAt, updatedAt)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	var (
		doc                  models.Document
		contentHash          sql.NullString
		uploadedBy           sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, file_type, original_filename, content_text, content_hash, uploaded_by, created_at, updated_at,
			(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)
		FROM documents d
		WHERE id = ?`, id).Scan(
		&doc.ID, &doc.Name, &doc.FileType, &doc.OriginalFilename, &doc.ContentText,
		&contentHash, &uploadedBy, &createdAt, &updatedAt, &doc.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	doc.ContentHash = contentHash.String
	setSQLiteFields(&doc, uploadedBy, createdAt, updatedAt)
	return &doc, nil
}

func (s *SQLiteStore) FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	var (
		doc                  models.Document
		uploadedBy           sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, file_type, original_filename, uploaded_by, created_at, updated_at
		FROM documents
		WHERE content_hash = ?
		ORDER BY created_at, rowid
		LIMIT 1`, hash).Scan(
		&doc.ID, &doc.Name, &doc.FileType, &doc.OriginalFilename, &uploadedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	doc.ContentHash = hash
	setSQLiteFields(&doc, uploadedBy, createdAt, updatedAt)
	return &doc, nil
}

// DeleteDocument removes the chunks explicitly so deletion does not depend
// on the connection having foreign keys enabled.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	if !s.IsAvailable() {
		return ErrStorageUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SimilaritySearch(ctx context.Context, embedding []float32, limit int, documentIDs []string) ([]models.SearchResult, error) {
	if !s.IsAvailable() {
		return nil, ErrStorageUnavailable
	}
	limit = normalizeLimit(limit)

	query := `SELECT c.document_id, d.name, c.content, c.embedding
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id`
	args := make([]any, 0, len(documentIDs))
	if len(documentIDs) > 0 {
		query += ` WHERE c.document_id IN (?` + strings.Repeat(", ?", len(documentIDs)-1) + `)`
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY d.created_at, d.rowid, c.chunk_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		result models.SearchResult
		score  float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			r      models.SearchResult
			vecStr string
			vec    []float32
		)
		if err := rows.Scan(&r.DocumentID, &r.DocumentName, &r.ChunkContent, &vecStr); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(vecStr), &vec); err != nil {
			s.logger.Warn("Skipping chunk with unreadable embedding",
				slog.String("document_id", r.DocumentID),
				slog.String("error", err.Error()))
			continue
		}
		score := cosineSimilarity(embedding, vec)
		r.Similarity = clampSimilarity(score)
		candidates = append(candidates, scored{result: r, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]models.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results, nil
}

func setSQLiteFields(doc *models.Document, uploadedBy sql.NullString, createdAt, updatedAt string) {
	if uploadedBy.Valid {
		doc.UploadedBy = &uploadedBy.String
	}
	doc.CreatedAt, _ = time.Parse(sqliteTimeFormat, createdAt)
	doc.UpdatedAt, _ = time.Parse(sqliteTimeFormat, updatedAt)
}
