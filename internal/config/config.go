// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the retrieval service
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MCPEnabled  bool   `env:"MCP_ENABLED" envDefault:"true"`

	// Auth (requests are unauthenticated when neither is set)
	APIKeys   []string      `env:"API_KEYS" envSeparator:","`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// PostgreSQL document registry (empty disables the registry)
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant
	QdrantGRPCURL string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`

	// Embedding
	EmbedderProvider    string `env:"EMBEDDER_PROVIDER" envDefault:"ollama"`
	OllamaURL           string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `env:"OPENAI_BASE_URL"`
	EmbeddingMaxTextLen int    `env:"EMBEDDING_MAX_TEXT_LEN" envDefault:"8192"`
	EmbeddingNormalize  bool   `env:"EMBEDDING_NORMALIZE" envDefault:"true"`
	EmbeddingCacheSize  int    `env:"EMBEDDING_CACHE_SIZE" envDefault:"1024"`

	// Retrieval defaults; per-request overrides arrive with each call
	DefaultCollection string  `env:"DEFAULT_COLLECTION" envDefault:"docs"`
	DefaultTopK       int     `env:"DEFAULT_TOP_K" envDefault:"20"`
	DefaultFinalK     int     `env:"DEFAULT_FINAL_K" envDefault:"5"`
	DefaultBudget     int     `env:"DEFAULT_TOKEN_BUDGET" envDefault:"2048"`
	DenseWeight       float64 `env:"FUSION_DENSE_WEIGHT" envDefault:"0.7"`
	LexicalWeight     float64 `env:"FUSION_LEXICAL_WEIGHT" envDefault:"0.3"`
	BM25K1            float64 `env:"BM25_K1" envDefault:"1.5"`
	BM25B             float64 `env:"BM25_B" envDefault:"0.75"`
	TokenEncoding     string  `env:"TOKEN_ENCODING" envDefault:"cl100k_base"`

	// Store connection pool and resilience
	PoolSize                int           `env:"POOL_SIZE" envDefault:"4"`
	PoolAcquireTimeout      time.Duration `env:"POOL_ACQUIRE_TIMEOUT" envDefault:"5s"`
	RetryMaxAttempts        int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay          time.Duration `env:"RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay           time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2s"`
	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerOpenDuration     time.Duration `env:"BREAKER_OPEN_DURATION" envDefault:"30s"`

	// Cross-encoder re-ranking (disabled unless RERANK_URL is set)
	RerankURL       string        `env:"RERANK_URL"`
	RerankModel     string        `env:"RERANK_MODEL" envDefault:"BAAI/bge-reranker-v2-m3"`
	RerankBatchSize int           `env:"RERANK_BATCH_SIZE" envDefault:"32"`
	RerankTimeout   time.Duration `env:"RERANK_TIMEOUT" envDefault:"10s"`

	// Query expansion
	ExpansionStrategy string `env:"EXPANSION_STRATEGY" envDefault:"synonym"`
	ExpansionMax      int    `env:"EXPANSION_MAX_VARIANTS" envDefault:"3"`
	SynonymsPath      string `env:"EXPANSION_SYNONYMS_PATH"`

	// Ingestion defaults
	DefaultChunkMethod     string `env:"DEFAULT_CHUNK_METHOD" envDefault:"sentence"`
	DefaultChunkTargetSize int    `env:"DEFAULT_CHUNK_TARGET_SIZE" envDefault:"512"`
	DefaultChunkMaxSize    int    `env:"DEFAULT_CHUNK_MAX_SIZE" envDefault:"1024"`
	DefaultChunkOverlap    int    `env:"DEFAULT_CHUNK_OVERLAP" envDefault:"50"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
