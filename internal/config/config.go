package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis (HTTP rate limiting + asynq broker)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini provider
	GeminiAPIKey   string
	GeminiModel    string
	EmbeddingModel string

	// Embedding client
	EmbeddingBatchSize  int
	MaxEmbeddingChars   int
	TruncateOversized   bool
	RetryAttempts       int
	RateLimitPerWindow  int
	RateLimitWindowSecs int

	// Retrieval
	TopK              int
	MinRelevanceScore float64

	// Generation
	MaxTokens      int
	Temperature    float32
	HistoryWindow  int
	RequestTimeout int // seconds, applied to every external call

	// Chunker
	MaxChunkSize int
	MinChunkSize int
	ChunkOverlap int

	// Ingestion
	ContentDir   string
	VectorDBPath string
	Collection   string
	AdminToken   string

	// HTTP rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Tracing
	OTLPEndpoint   string
	TracingEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/book_chatbot"),
		DBName:      getEnv("DB_NAME", "book_chatbot"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),

		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 96),
		MaxEmbeddingChars:   getEnvInt("MAX_EMBEDDING_CHARS", 16000),
		TruncateOversized:   getEnvBool("TRUNCATE_OVERSIZED_CHUNKS", true),
		RetryAttempts:       getEnvInt("RETRY_ATTEMPTS", 3),
		RateLimitPerWindow:  getEnvInt("EMBED_RATE_LIMIT_REQUESTS", 100),
		RateLimitWindowSecs: getEnvInt("EMBED_RATE_LIMIT_WINDOW", 60),

		TopK:              getEnvInt("TOP_K", 5),
		MinRelevanceScore: getEnvFloat64("MIN_RELEVANCE_SCORE", 0.3),

		MaxTokens:      getEnvInt("MAX_TOKENS", 1000),
		Temperature:    float32(getEnvFloat64("TEMPERATURE", 0.7)),
		HistoryWindow:  getEnvInt("HISTORY_WINDOW", 10),
		RequestTimeout: getEnvInt("REQUEST_TIMEOUT", 30),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 4000),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 200),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		ContentDir:   getEnv("CONTENT_DIR", "./docs"),
		VectorDBPath: getEnv("VECTOR_DB_PATH", "./storage/vectors"),
		Collection:   getEnv("VECTOR_COLLECTION", "book_chunks"),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required - set it in .env file")
	}

	if cfg.MinRelevanceScore < 0 || cfg.MinRelevanceScore > 1 {
		return nil, fmt.Errorf("MIN_RELEVANCE_SCORE must be in [0,1], got %f", cfg.MinRelevanceScore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
