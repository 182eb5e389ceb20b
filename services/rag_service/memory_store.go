package rag_service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serisow/sagefemme/models"
)

type memoryDocument struct {
	doc    models.Document
	seq    int
	chunks []models.Chunk
}

// MemoryStore is a DocumentStore held in process memory, searched by brute
// force. It backs local development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memoryDocument
	seq  int
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*memoryDocument),
		now:  time.Now,
	}
}

func (s *MemoryStore) IsAvailable() bool { return true }

func (s *MemoryStore) InsertDocument(ctx context.Context, meta models.DocumentMeta, contentText string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.insertLocked(meta, contentText)
	return &doc, nil
}

func (s *MemoryStore) InsertChunks(ctx context.Context, documentID string, chunks []string, embeddings [][]float32) error {
	if err := checkAlignment(chunks, embeddings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	md, ok := s.docs[documentID]
	if !ok {
		return ErrDocumentNotFound
	}
	if len(md.chunks) > 0 {
		return fmt.Errorf("chunks already stored for document %s", documentID)
	}
	md.chunks = toChunks(documentID, chunks, embeddings)
	md.doc.ChunkCount = len(md.chunks)
	return nil
}

func (s *MemoryStore) CreateDocumentWithChunks(ctx context.Context, meta models.DocumentMeta, contentText string, chunks []string, embeddings [][]float32) (*models.Document, error) {
	if err := checkAlignment(chunks, embeddings); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.insertLocked(meta, contentText)
	md := s.docs[doc.ID]
	md.chunks = toChunks(doc.ID, chunks, embeddings)
	md.doc.ChunkCount = len(chunks)

	doc.ChunkCount = len(chunks)
	return &doc, nil
}

func (s *MemoryStore) insertLocked(meta models.DocumentMeta, contentText string) models.Document {
	now := s.now().UTC()
	s.seq++
	doc := models.Document{
		ID:               uuid.NewString(),
		Name:             meta.Name,
		FileType:         meta.FileType,
		OriginalFilename: meta.OriginalFilename,
		ContentText:      contentText,
		ContentHash:      meta.ContentHash,
		UploadedBy:       nullableString(meta.UploadedBy),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.docs[doc.ID] = &memoryDocument{doc: doc, seq: s.seq}

	doc.ContentText = ""
	return doc
}

func toChunks(documentID string, chunks []string, embeddings [][]float32) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	for i := range chunks {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		out[i] = models.Chunk{DocumentID: documentID, ChunkIndex: i, Content: chunks[i], Embedding: vec}
	}
	return out
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]*memoryDocument, 0, len(s.docs))
	for _, md := range s.docs {
		ordered = append(ordered, md)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq > ordered[j].seq
	})

	docs := make([]models.Document, 0, len(ordered))
	for _, md := range ordered {
		doc := md.doc
		doc.ContentText = ""
		doc.ContentHash = ""
		doc.ChunkCount = 0
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	doc := md.doc
	return &doc, nil
}

func (s *MemoryStore) FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *memoryDocument
	for _, md := range s.docs {
		if md.doc.ContentHash == hash && (found == nil || md.seq < found.seq) {
			found = md
		}
	}
	if found == nil {
		return nil, ErrDocumentNotFound
	}
	doc := found.doc
	doc.ContentText = ""
	return &doc, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, embedding []float32, limit int, documentIDs []string) ([]models.SearchResult, error) {
	limit = normalizeLimit(limit)

	var filter map[string]bool
	if len(documentIDs) > 0 {
		filter = make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			filter[id] = true
		}
	}

	s.mu.RLock()
	type scored struct {
		result models.SearchResult
		score  float64
		seq    int
		index  int
	}
	var candidates []scored
	for id, md := range s.docs {
		if filter != nil && !filter[id] {
			continue
		}
		for _, c := range md.chunks {
			score := cosineSimilarity(embedding, c.Embedding)
			candidates = append(candidates, scored{
				result: models.SearchResult{
					DocumentID:   id,
					DocumentName: md.doc.Name,
					ChunkContent: c.Content,
					Similarity:   clampSimilarity(score),
				},
				score: score,
				seq:   md.seq,
				index: c.ChunkIndex,
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		// Rank on the raw cosine; clamped scores tie at zero.
		if a.score != b.score {
			return a.score > b.score
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.index < b.index
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

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
