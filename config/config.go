package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	HTTPPort     string
	Domains      []string
	CertCacheDir string

	DatabaseURL  string
	StoreBackend string
	SQLitePath   string
	DBMaxRetries int
	DBRetryDelay time.Duration

	LogDir   string
	LogLevel string

	GeminiAPIKey    string
	GeminiAPIURL    string
	ExtractionModel string
	GenerationModel string
	AssistantModel  string

	EmbeddingProvider    string
	EmbeddingModel       string
	EmbeddingDimension   int
	EmbeddingConcurrency int
	EmbeddingRateLimit   float64

	OpenAIAPIKey    string
	OpenAIAPIURL    string
	OpenAIChatModel string

	AnthropicAPIKey string
	AnthropicAPIURL string
	AnthropicModel  string

	ExtractionBackend  string
	GenerationProvider string
	VertexProjectID    string
	VertexRegion       string

	MaxUploadBytes     int64
	DeduplicateUploads bool
	CORSAllowedOrigins []string

	ReindexInterval time.Duration
	ReindexDailyAt  string

	WatchSettleDelay time.Duration
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "3333"),
		Domains:      getEnvAsList("DOMAINS", []string{getEnv("DOMAIN", "example.com")}),
		CertCacheDir: getEnv("CERT_CACHE_DIR", "../certs"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		SQLitePath:   getEnv("SQLITE_PATH", "data/sagefemme.db"),
		DBMaxRetries: getEnvAsInt("DB_MAX_RETRIES", 10),
		DBRetryDelay: time.Duration(getEnvAsInt("DB_RETRY_DELAY", 10)) * time.Second,

		LogDir:   getEnv("LOG_DIR", "logs"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiAPIURL:    strings.TrimRight(getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
		ExtractionModel: getEnv("EXTRACTION_MODEL", "gemini-2.5-flash"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.5-flash"),
		AssistantModel:  getEnv("ASSISTANT_MODEL", ""),

		EmbeddingProvider:    strings.ToLower(getEnv("EMBEDDING_PROVIDER", "gemini")),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", ""),
		EmbeddingDimension:   getEnvAsInt("EMBEDDING_DIMENSION", 768),
		EmbeddingConcurrency: getEnvAsInt("EMBEDDING_CONCURRENCY", 8),
		EmbeddingRateLimit:   getEnvAsFloat("EMBEDDING_RATE_LIMIT", 0),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:    strings.TrimRight(getEnv("OPENAI_API_URL", "https://api.openai.com/v1"), "/"),
		OpenAIChatModel: getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicAPIURL: getEnv("ANTHROPIC_API_URL", "https://api.anthropic.com/v1/messages"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),

		ExtractionBackend:  strings.ToLower(getEnv("EXTRACTION_BACKEND", "gemini")),
		GenerationProvider: strings.ToLower(getEnv("GENERATION_PROVIDER", "gemini")),
		VertexProjectID:    getEnv("VERTEX_PROJECT_ID", ""),
		VertexRegion:       getEnv("VERTEX_REGION", "europe-west1"),

		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 20<<20)),
		DeduplicateUploads: getEnvAsBool("DEDUPLICATE_UPLOADS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		ReindexInterval: time.Duration(getEnvAsInt("REINDEX_INTERVAL_MINUTES", 60)) * time.Minute,
		ReindexDailyAt:  getEnv("REINDEX_DAILY_AT", ""),

		WatchSettleDelay: time.Duration(getEnvAsInt("WATCH_SETTLE_MS", 2000)) * time.Millisecond,
	}
}

// VertexEnabled reports whether any capability is routed to Vertex AI.
func (c Config) VertexEnabled() bool {
	return c.ExtractionBackend == "vertex" || c.GenerationProvider == "vertex"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
