package rag_service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/serisow/sagefemme/db"
	"github.com/serisow/sagefemme/models"
)

func TestPgStoreWithoutPool(t *testing.T) {
	ctx := context.Background()
	s := NewPgStore(nil, discardLogger())

	if s.IsAvailable() {
		t.Fatal("Expected store without pool to be unavailable")
	}
	if _, err := s.InsertDocument(ctx, models.DocumentMeta{}, "t"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("InsertDocument: expected ErrStorageUnavailable, got %v", err)
	}
	if err := s.InsertChunks(ctx, "id", nil, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("InsertChunks: expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := s.ListDocuments(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("ListDocuments: expected ErrStorageUnavailable, got %v", err)
	}
	if err := s.DeleteDocument(ctx, "id"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("DeleteDocument: expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := s.SimilaritySearch(ctx, []float32{1}, 5, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("SimilaritySearch: expected ErrStorageUnavailable, got %v", err)
	}
}

func TestBuildSimilarityQuery(t *testing.T) {
	vec := pgvector.NewVector([]float32{1, 2})

	query, args := buildSimilarityQuery(vec, 5, nil)
	if strings.Contains(query, "ANY(") || strings.Contains(query, "MATERIALIZED") {
		t.Errorf("Expected no document filter, got %s", query)
	}
	if len(args) != 2 || args[1] != 5 {
		t.Errorf("Unexpected args %v", args)
	}
	if !strings.Contains(query, "ORDER BY c.embedding <=> $1::vector") || !strings.Contains(query, "LIMIT $2") {
		t.Errorf("Expected cosine ordering with limit, got %s", query)
	}

	ids := []string{"0b7e3c52-6c5b-4a8e-9d55-1f3b7f2a9c11"}
	query, args = buildSimilarityQuery(vec, 3, ids)
	if !strings.Contains(query, "WHERE document_id = ANY($3::uuid[])") {
		t.Errorf("Expected document filter, got %s", query)
	}
	if !strings.Contains(query, "AS MATERIALIZED") || !strings.Contains(query, "FROM candidates c") {
		t.Errorf("Expected the filter to run before the ordering, got %s", query)
	}
	if !strings.Contains(query, "ORDER BY c.embedding <=> $1::vector") || !strings.Contains(query, "LIMIT $2") {
		t.Errorf("Expected cosine ordering with limit, got %s", query)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 args, got %d", len(args))
	}
}

func TestOptimalLists(t *testing.T) {
	tests := []struct {
		count, want int
	}{
		{0, 0},
		{999, 0},
		{1000, 31},
		{10000, 100},
		{1000000, 1000},
	}
	for _, tt := range tests {
		if got := OptimalLists(tt.count); got != tt.want {
			t.Errorf("OptimalLists(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}

	if needsRebuild(100, 120) {
		t.Error("Expected small drift to keep the index")
	}
	if !needsRebuild(31, 100) {
		t.Error("Expected large drift to rebuild the index")
	}
	if !needsRebuild(31, 0) {
		t.Error("Expected an index below the population floor to be dropped")
	}
}

// TestPgStoreIntegration runs against a real Postgres with pgvector. It is
// skipped unless TEST_DATABASE_URL is set.
func TestPgStoreIntegration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL, 1, 0, discardLogger())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS document_chunks, documents"); err != nil {
		t.Fatalf("Failed to reset schema: %v", err)
	}
	if err := db.EnsureSchema(ctx, pool, 4); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	s := NewPgStore(pool, discardLogger())

	doc, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "HTA", FileType: "text/plain", OriginalFilename: "hta.txt", ContentHash: "h1"},
		"texte complet", []string{"tension", "glycémie"}, [][]float32{keywordVector("tension"), keywordVector("glycémie")})
	if err != nil {
		t.Fatalf("CreateDocumentWithChunks failed: %v", err)
	}
	if doc.ChunkCount != 2 || doc.UploadedBy != nil {
		t.Errorf("Unexpected document %+v", doc)
	}

	if _, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "bad"}, "t", []string{"a"}, [][]float32{{1, 2}}); err == nil {
		t.Error("Expected dimension mismatch to fail")
	}
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected the failed transaction to leave no row, got %d documents", len(docs))
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.ContentText != "texte complet" || got.ChunkCount != 2 || got.ContentHash != "h1" {
		t.Errorf("Unexpected document %+v", got)
	}
	if found, err := s.FindDocumentByHash(ctx, "h1"); err != nil || found.ID != doc.ID {
		t.Errorf("FindDocumentByHash: got %v, %v", found, err)
	}

	results, err := s.SimilaritySearch(ctx, keywordVector("tension"), 5, []string{doc.ID})
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 2 || results[0].ChunkContent != "tension" || results[0].DocumentName != "HTA" {
		t.Errorf("Unexpected results %+v", results)
	}

	// Once the ivfflat index exists, a filtered search must still reach the
	// document's chunks even when other documents fill the nearest lists.
	filler := make([]string, 1000)
	fillerVecs := make([][]float32, len(filler))
	for i := range filler {
		filler[i] = fmt.Sprintf("glycémie %d", i)
		fillerVecs[i] = []float32{1, float32(i%7) * 0.01, 0, float32(i%11) * 0.01}
	}
	other, err := s.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: "Diabète gestationnel"}, "texte", filler, fillerVecs)
	if err != nil {
		t.Fatalf("CreateDocumentWithChunks failed: %v", err)
	}
	if err := NewIndexManager(pool, discardLogger()).CreateOrUpdateIndex(ctx); err != nil {
		t.Fatalf("CreateOrUpdateIndex failed: %v", err)
	}
	results, err = s.SimilaritySearch(ctx, keywordVector("glycémie"), 3, []string{doc.ID})
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 2 || results[0].ChunkContent != "glycémie" || results[0].DocumentID != doc.ID {
		t.Errorf("Expected both HTA chunks after indexing, got %+v", results)
	}
	if err := s.DeleteDocument(ctx, other.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if err := s.DeleteDocument(ctx, "not-a-uuid"); err != nil {
		t.Errorf("Expected malformed id delete to be a no-op, got %v", err)
	}
	var chunkCount int
	pool.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&chunkCount)
	if chunkCount != 0 {
		t.Errorf("Expected chunks to be deleted with the document, got %d", chunkCount)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}
