package rag_service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serisow/sagefemme/db"
	"github.com/serisow/sagefemme/models"
)

func newTestSQLiteStore(t *testing.T, dimension int) *SQLiteStore {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	s := NewSQLiteStore(sqlDB, dimension, discardLogger())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestSQLiteStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(nil, 0, discardLogger())

	if s.IsAvailable() {
		t.Fatalf("Expected store without database to be unavailable")
	}
	if _, err := s.ListDocuments(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := s.SimilaritySearch(ctx, []float32{1}, 5, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, 4)

	first, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "HTA", FileType: "text/plain", OriginalFilename: "hta.txt", ContentHash: "h1"},
		"texte", []string{"tension artérielle"}, [][]float32{{0, 1, 0, 0}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "Allaitement", UploadedBy: "marie"},
		"texte", []string{"allaitement", "sevrage"}, [][]float32{{0, 0, 1, 0}, {0, 0, 1, 1}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first.ChunkCount != 1 || second.ChunkCount != 2 {
		t.Errorf("Unexpected chunk counts %d and %d", first.ChunkCount, second.ChunkCount)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(docs) != 2 || docs[0].ID != second.ID || docs[1].ID != first.ID {
		t.Fatalf("Expected newest first, got %+v", docs)
	}
	if docs[0].UploadedBy == nil || *docs[0].UploadedBy != "marie" {
		t.Errorf("Expected uploader marie, got %v", docs[0].UploadedBy)
	}
	if docs[1].UploadedBy != nil {
		t.Errorf("Expected nil uploader, got %v", *docs[1].UploadedBy)
	}
	if !docs[1].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", first.CreatedAt, docs[1].CreatedAt)
	}

	got, err := s.GetDocument(ctx, first.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.ContentText != "texte" || got.ChunkCount != 1 || got.ContentHash != "h1" {
		t.Errorf("Expected content, hash and chunk count, got %+v", got)
	}

	found, err := s.FindDocumentByHash(ctx, "h1")
	if err != nil || found.ID != first.ID {
		t.Errorf("Expected to find %s by hash, got %+v, %v", first.ID, found, err)
	}

	if err := s.DeleteDocument(ctx, first.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.DeleteDocument(ctx, first.ID); err != nil {
		t.Errorf("Expected delete to be idempotent, got %v", err)
	}
	if err := s.DeleteDocument(ctx, "not-a-uuid"); err != nil {
		t.Errorf("Expected malformed id delete to be a no-op, got %v", err)
	}
	if _, err := s.GetDocument(ctx, first.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := s.FindDocumentByHash(ctx, "h1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}

	results, err := s.SimilaritySearch(ctx, []float32{0, 1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, r := range results {
		if r.DocumentID == first.ID {
			t.Errorf("Expected chunks of deleted document to be gone")
		}
	}
}

func TestSQLiteStoreRejectsBadWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, 2)

	_, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "x"}, "t", []string{"a", "b"}, [][]float32{{1, 0}})
	if !errors.Is(err, ErrAlignment) {
		t.Fatalf("Expected ErrAlignment, got %v", err)
	}

	_, err = s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "x"}, "t", []string{"a"}, [][]float32{{1, 0, 0}})
	if err == nil {
		t.Fatalf("Expected dimension mismatch to fail")
	}
	if docs, _ := s.ListDocuments(ctx); len(docs) != 0 {
		t.Errorf("Expected failed writes to be rolled back, got %d documents", len(docs))
	}

	doc, err := s.InsertDocument(ctx, models.DocumentMeta{Name: "y"}, "t")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.InsertChunks(ctx, doc.ID, []string{"a"}, [][]float32{{1, 0}}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := s.InsertChunks(ctx, doc.ID, []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Errorf("Expected duplicate chunk index to fail")
	}
}

func TestSQLiteStoreSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, 2)

	a, _ := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "A"}, "t",
		[]string{"a0", "a1"}, [][]float32{{1, 0}, {1, 1}})
	b, _ := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "B"}, "t",
		[]string{"b0", "b1"}, [][]float32{{0, 1}, {-1, 0}})

	results, err := s.SimilaritySearch(ctx, []float32{1, 0}, 0, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := []string{"a0", "a1", "b0", "b1"}
	if len(results) != len(want) {
		t.Fatalf("Expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.ChunkContent != want[i] {
			t.Errorf("Result %d: expected %s, got %s", i, want[i], r.ChunkContent)
		}
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("Similarity out of range: %v", r.Similarity)
		}
	}

	filtered, _ := s.SimilaritySearch(ctx, []float32{1, 0}, 5, []string{b.ID, "not-a-uuid"})
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 results from document B, got %d", len(filtered))
	}
	for _, r := range filtered {
		if r.DocumentID != b.ID || r.DocumentName != "B" {
			t.Errorf("Expected only document B, got %+v", r)
		}
	}

	limited, _ := s.SimilaritySearch(ctx, []float32{1, 0}, 1, nil)
	if len(limited) != 1 || limited[0].DocumentID != a.ID || limited[0].Similarity < 0.999 {
		t.Errorf("Expected single exact match from A, got %+v", limited)
	}

	empty, err := s.SimilaritySearch(ctx, []float32{1, 0}, 5, []string{"missing"})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil results, got %v, %v", empty, err)
	}
}
