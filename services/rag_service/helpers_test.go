package rag_service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// keywordEmbedder maps text to a 4-dimensional vector counting a few
// clinical keywords, so similarity is predictable in tests.
type keywordEmbedder struct {
	mu       sync.Mutex
	calls    int
	failOn   string
	fail     error
	disabled bool
}

var testKeywords = []string{"glycémie", "tension", "allaitement", "sommeil"}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(testKeywords))
	for i, kw := range testKeywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	return vec
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.disabled {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: io.EOF}
	}
	if e.fail != nil && strings.Contains(text, e.failOn) {
		return nil, &EmbeddingError{Stage: StageQuery, Index: -1, Err: e.fail}
	}
	return keywordVector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.disabled {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: io.EOF}
	}
	return embedBatch(ctx, func(ctx context.Context, text string) ([]float32, error) {
		e.mu.Lock()
		e.calls++
		e.mu.Unlock()
		if e.fail != nil && strings.Contains(text, e.failOn) {
			return nil, e.fail
		}
		return keywordVector(text), nil
	}, len(testKeywords), 4, texts)
}

func (e *keywordEmbedder) IsAvailable() bool { return !e.disabled }

func (e *keywordEmbedder) Dimension() int { return len(testKeywords) }

// unavailableStore reports no backend; any call other than IsAvailable is a
// test failure.
type unavailableStore struct {
	DocumentStore
}

func (unavailableStore) IsAvailable() bool { return false }

// longText returns a text well above the chunk floor mentioning keyword.
func longText(keyword string, sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("Le suivi de la ")
		b.WriteString(keyword)
		b.WriteString(" fait partie de la consultation prénatale habituelle.\n")
	}
	return b.String()
}
