package rag_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultEmbeddingDimension   = 768
	DefaultEmbeddingConcurrency = 8
)

// Embedder maps text to fixed-length vectors. EmbedBatch is all-or-nothing:
// on any failure it returns an *EmbeddingError and no vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	IsAvailable() bool
	Dimension() int
}

type EmbeddingConfig struct {
	Provider    string // gemini or openai
	APIURL      string
	APIKey      string
	Model       string
	Dimension   int
	Concurrency int
	// RequestsPerSecond caps calls to the provider. Zero means unlimited.
	RequestsPerSecond float64
}

func NewEmbedder(cfg EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultEmbeddingDimension
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbeddingConcurrency
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiEmbeddingModel
		}
		return NewGeminiEmbedder(cfg, logger), nil
	case "openai":
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIEmbeddingModel
		}
		return NewOpenAIEmbedder(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

type embedFunc func(ctx context.Context, text string) ([]float32, error)

// embedOne wraps a single-text call with the dimension check.
func embedOne(ctx context.Context, fn embedFunc, dimension int, text string) ([]float32, error) {
	vec, err := fn(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Stage: StageQuery, Index: -1, Err: err}
	}
	if len(vec) != dimension {
		return nil, &EmbeddingError{Stage: StageDimension, Index: -1, Err: fmt.Errorf("expected %d dimensions, got %d", dimension, len(vec))}
	}
	return vec, nil
}

// newLimiter returns nil when calls are unlimited.
func newLimiter(cfg EmbeddingConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// embedBatch calls fn for every text with at most limit calls in flight.
// Slot i of the result always holds the vector of texts[i].
func embedBatch(ctx context.Context, fn embedFunc, dimension, limit int, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := fn(gctx, text)
			if err != nil {
				return &EmbeddingError{Stage: StageBatch, Index: i, Err: err}
			}
			if len(vec) != dimension {
				return &EmbeddingError{Stage: StageDimension, Index: i, Err: fmt.Errorf("expected %d dimensions, got %d", dimension, len(vec))}
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// GeminiEmbedder calls the Gemini embedContent endpoint.
type GeminiEmbedder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	config     EmbeddingConfig
}

func NewGeminiEmbedder(cfg EmbeddingConfig, logger *slog.Logger) *GeminiEmbedder {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    newLimiter(cfg),
		logger:     logger,
		config:     cfg,
	}
}

func (e *GeminiEmbedder) IsAvailable() bool { return e.config.APIKey != "" }

func (e *GeminiEmbedder) Dimension() int { return e.config.Dimension }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.IsAvailable() {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: fmt.Errorf("gemini API key is not configured")}
	}
	return embedOne(ctx, e.embed, e.config.Dimension, text)
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.IsAvailable() {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: fmt.Errorf("gemini API key is not configured")}
	}
	return embedBatch(ctx, e.embed, e.config.Dimension, e.config.Concurrency, texts)
}

func (e *GeminiEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if err := waitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}
	model := strings.TrimPrefix(e.config.Model, "models/")
	requestBody, err := json.Marshal(map[string]interface{}{
		"model": "models/" + model,
		"content": map[string]interface{}{
			"parts": []map[string]string{{"text": text}},
		},
		"outputDimensionality": e.config.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", e.config.APIURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embeddingResp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}

	return embeddingResp.Embedding.Values, nil
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint, asking for vectors of
// the configured dimension.
type OpenAIEmbedder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	config     EmbeddingConfig
}

func NewOpenAIEmbedder(cfg EmbeddingConfig, logger *slog.Logger) *OpenAIEmbedder {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openai.com/v1"
	}
	return &OpenAIEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    newLimiter(cfg),
		logger:     logger,
		config:     cfg,
	}
}

func (e *OpenAIEmbedder) IsAvailable() bool { return e.config.APIKey != "" }

func (e *OpenAIEmbedder) Dimension() int { return e.config.Dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.IsAvailable() {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: fmt.Errorf("OPENAI_API_KEY not set")}
	}
	return embedOne(ctx, e.embed, e.config.Dimension, text)
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.IsAvailable() {
		return nil, &EmbeddingError{Stage: StageConfig, Index: -1, Err: fmt.Errorf("OPENAI_API_KEY not set")}
	}
	return embedBatch(ctx, e.embed, e.config.Dimension, e.config.Concurrency, texts)
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if err := waitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}
	requestBody, err := json.Marshal(map[string]interface{}{
		"input":      text,
		"model":      e.config.Model,
		"dimensions": e.config.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+"/embeddings", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embeddingResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}

	e.logger.Debug("Embedding generated", slog.Int("total_tokens", embeddingResp.Usage.TotalTokens))
	return embeddingResp.Data[0].Embedding, nil
}
