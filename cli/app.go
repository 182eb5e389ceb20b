package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/serisow/sagefemme/config"
	"github.com/serisow/sagefemme/db"
	"github.com/serisow/sagefemme/logging"
	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/plugin_registry"
	"github.com/serisow/sagefemme/scheduler"
	"github.com/serisow/sagefemme/services/llm_service"
	"github.com/serisow/sagefemme/services/rag_service"
)

// App holds the document pipeline shared by every command.
type App struct {
	Config    config.Config
	Store     rag_service.DocumentStore
	Extractor *rag_service.TextExtractor
	Embedder  rag_service.Embedder
	Processor *rag_service.Processor
	Retriever *rag_service.Retriever
	Advisor   *rag_service.Advisor
	// Indexer is only set for the postgres backend.
	Indexer *rag_service.IndexManager

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp is replaced in tests.
var newApp = buildApp

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, indexer, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	closers = append(closers, closeStore)

	registry := plugin_registry.NewPluginRegistry()
	closers = append(closers, registerProviders(ctx, registry, cfg, logger))

	reader, err := registry.ResolveDocumentReader(cfg.ExtractionBackend)
	if err != nil {
		cleanup()
		return nil, err
	}
	generation, err := registry.ResolveLLMService(cfg.GenerationProvider)
	if err != nil {
		cleanup()
		return nil, err
	}
	embedder, err := rag_service.NewEmbedder(embeddingConfig(cfg), logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	app := assembleApp(cfg, logger, store, reader, generation, embedder)
	app.Indexer = indexer
	app.closers = closers

	logger.Info("Capabilities",
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("storage", store.IsAvailable()),
		slog.Bool("embeddings", embedder.IsAvailable()),
		slog.Bool("extraction", app.Extractor.IsAvailable()),
		slog.Bool("generation", app.Advisor.IsAvailable()),
		slog.String("extraction_backend", cfg.ExtractionBackend),
		slog.String("generation_provider", cfg.GenerationProvider),
		slog.String("embedding_provider", cfg.EmbeddingProvider))

	return app, nil
}

func assembleApp(cfg config.Config, logger *slog.Logger, store rag_service.DocumentStore, reader llm_service.DocumentReader, generation llm_service.LLMService, embedder rag_service.Embedder) *App {
	extractor := rag_service.NewTextExtractor(reader, logger)
	retriever := rag_service.NewRetriever(store, embedder, logger)
	return &App{
		Config:    cfg,
		Store:     store,
		Extractor: extractor,
		Embedder:  embedder,
		Processor: rag_service.NewProcessor(store, extractor, embedder, logger,
			rag_service.WithDeduplication(cfg.DeduplicateUploads)),
		Retriever: retriever,
		Advisor:   rag_service.NewAdvisor(retriever, generation, cfg.AssistantModel, logger),
	}
}

// initLogger logs to the daily file and mirrors to console.
func initLogger(cfg config.Config, console io.Writer) (*slog.Logger, *logging.DailyFileHandler, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	fileHandler, err := logging.NewDailyFileHandlerWithMirror(cfg.LogDir, "documents", console, &slog.HandlerOptions{
		Level: level,
	})
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(fileHandler)
	slog.SetDefault(logger)
	return logger, fileHandler, nil
}

// setupStore returns the document store selected by STORE_BACKEND. A
// postgres backend without DATABASE_URL yields an unavailable store so the
// service still starts and reports it on /health.
func setupStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (rag_service.DocumentStore, *rag_service.IndexManager, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory document store, documents are lost on restart")
		return rag_service.NewMemoryStore(), nil, func() {}, nil
	case "sqlite":
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Using SQLite document store", slog.String("path", cfg.SQLitePath))
		return rag_service.NewSQLiteStore(sqlDB, cfg.EmbeddingDimension, logger), nil, func() { sqlDB.Close() }, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Warn("DATABASE_URL is not set, document storage is disabled")
			return rag_service.NewPgStore(nil, logger), nil, func() {}, nil
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxRetries, cfg.DBRetryDelay, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.EnsureSchema(ctx, pool, cfg.EmbeddingDimension); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return rag_service.NewPgStore(pool, logger), rag_service.NewIndexManager(pool, logger), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND: %s", cfg.StoreBackend)
	}
}

// registerProviders registers every AI provider that can be built from cfg
// and returns a function releasing their resources.
func registerProviders(ctx context.Context, registry *plugin_registry.PluginRegistry, cfg config.Config, logger *slog.Logger) func() {
	gemini := llm_service.NewGeminiService(llm_service.GeminiConfig{
		APIURL:          cfg.GeminiAPIURL,
		APIKey:          cfg.GeminiAPIKey,
		ExtractionModel: cfg.ExtractionModel,
		GenerationModel: cfg.GenerationModel,
	}, logger)
	registry.RegisterLLMService("gemini", gemini)
	registry.RegisterDocumentReader("gemini", gemini)

	registry.RegisterLLMService("openai", llm_service.NewOpenAIService(llm_service.OpenAIConfig{
		APIURL: cfg.OpenAIAPIURL,
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIChatModel,
	}, logger))
	registry.RegisterLLMService("anthropic", llm_service.NewAnthropicService(llm_service.AnthropicConfig{
		APIURL: cfg.AnthropicAPIURL,
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	}, logger))
	registry.RegisterDocumentReader("local", llm_service.NewLocalPDFReader(logger))

	if !cfg.VertexEnabled() {
		return func() {}
	}
	vertex, err := llm_service.NewVertexService(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.ExtractionModel, cfg.GenerationModel, logger)
	if err != nil {
		logger.Error("Failed to initialize Vertex AI", slog.String("error", err.Error()))
		return func() {}
	}
	registry.RegisterLLMService("vertex", vertex)
	registry.RegisterDocumentReader("vertex", vertex)
	return func() {
		if err := vertex.Close(); err != nil {
			logger.Warn("Failed to close Vertex AI client", slog.String("error", err.Error()))
		}
	}
}

func embeddingConfig(cfg config.Config) rag_service.EmbeddingConfig {
	ec := rag_service.EmbeddingConfig{
		Provider:          cfg.EmbeddingProvider,
		Model:             cfg.EmbeddingModel,
		Dimension:         cfg.EmbeddingDimension,
		Concurrency:       cfg.EmbeddingConcurrency,
		RequestsPerSecond: cfg.EmbeddingRateLimit,
		APIURL:            cfg.GeminiAPIURL,
		APIKey:            cfg.GeminiAPIKey,
	}
	if cfg.EmbeddingProvider == "openai" {
		ec.APIURL = cfg.OpenAIAPIURL
		ec.APIKey = cfg.OpenAIAPIKey
	}
	return ec
}

func reindexJob(cfg config.Config, im *rag_service.IndexManager) *scheduler.Job {
	job := &scheduler.Job{
		Name:         "reindex_document_chunks",
		ScheduleType: scheduler.ScheduleInterval,
		Interval:     cfg.ReindexInterval,
		Run:          im.ReindexIfNeeded,
	}
	if cfg.ReindexDailyAt != "" {
		job.ScheduleType = scheduler.ScheduleDaily
		job.DailyAt = cfg.ReindexDailyAt
	}
	return job
}

// ingestFile reads path and runs it through the processor. The document
// name defaults to the file name without its extension.
func ingestFile(ctx context.Context, p *rag_service.Processor, path, name, uploadedBy string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	filename := filepath.Base(path)
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	return p.Ingest(ctx, rag_service.IngestRequest{
		Data:       data,
		Filename:   filename,
		Name:       name,
		UploadedBy: uploadedBy,
	})
}
