package rag_service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/serisow/sagefemme/models"
)

// recordingStore wraps a MemoryStore and remembers the last search limit.
type recordingStore struct {
	*MemoryStore
	lastLimit int
}

func (s *recordingStore) SimilaritySearch(ctx context.Context, embedding []float32, limit int, documentIDs []string) ([]models.SearchResult, error) {
	s.lastLimit = limit
	return s.MemoryStore.SimilaritySearch(ctx, embedding, limit, documentIDs)
}

func seedStore(t *testing.T) (*MemoryStore, map[string]string) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	ids := make(map[string]string)
	for _, kw := range testKeywords {
		doc, err := store.CreateDocumentWithChunks(ctx, models.DocumentMeta{Name: kw}, "t",
			[]string{"chunk " + kw}, [][]float32{keywordVector(kw)})
		if err != nil {
			t.Fatalf("Failed to seed store: %v", err)
		}
		ids[kw] = doc.ID
	}
	return store, ids
}

func TestSearchRanksByRelevance(t *testing.T) {
	store, ids := seedStore(t)
	r := NewRetriever(store, &keywordEmbedder{}, discardLogger())

	results, err := r.Search(context.Background(), "Quelle surveillance de la tension ?", 2, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].DocumentID != ids["tension"] || results[0].Similarity != 1 {
		t.Errorf("Expected the tension document first with similarity 1, got %+v", results[0])
	}
}

func TestSearchValidation(t *testing.T) {
	store, _ := seedStore(t)
	embedder := &keywordEmbedder{}
	r := NewRetriever(store, embedder, discardLogger())

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := r.Search(context.Background(), q, 5, nil); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Expected ErrInvalidQuery for %q, got %v", q, err)
		}
	}
	for _, id := range []string{"42", "doc-1"} {
		if _, err := r.Search(context.Background(), "tension", 5, []string{id}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for %q, got %v", id, err)
		}
	}
	if embedder.calls != 0 {
		t.Errorf("Expected no embedding call for invalid input, got %d", embedder.calls)
	}
}

func TestSearchLimits(t *testing.T) {
	base, _ := seedStore(t)
	store := &recordingStore{MemoryStore: base}
	r := NewRetriever(store, &keywordEmbedder{}, discardLogger())

	tests := []struct {
		limit, want int
	}{
		{0, DefaultSearchLimit},
		{-3, DefaultSearchLimit},
		{3, 3},
		{500, MaxSearchLimit},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			if _, err := r.Search(context.Background(), "sommeil", tt.limit, nil); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if store.lastLimit != tt.want {
				t.Errorf("Expected limit %d, got %d", tt.want, store.lastLimit)
			}
		})
	}
}

func TestSearchFilterAndFailures(t *testing.T) {
	store, ids := seedStore(t)

	r := NewRetriever(store, &keywordEmbedder{}, discardLogger())
	results, err := r.Search(context.Background(), "tension", 5, []string{ids["sommeil"]})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != ids["sommeil"] {
		t.Errorf("Expected only the filtered document, got %+v", results)
	}

	failing := NewRetriever(store, &keywordEmbedder{failOn: "tension", fail: errors.New("timeout")}, discardLogger())
	if _, err := failing.Search(context.Background(), "tension", 5, nil); !errors.Is(err, ErrEmbedding) {
		t.Errorf("Expected ErrEmbedding, got %v", err)
	}

	offline := NewRetriever(unavailableStore{}, &keywordEmbedder{}, discardLogger())
	if _, err := offline.Search(context.Background(), "tension", 5, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}
