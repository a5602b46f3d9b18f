package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/passagekit/passage/internal/auth"
	"github.com/passagekit/passage/internal/config"
	"github.com/passagekit/passage/internal/embedder"
	"github.com/passagekit/passage/internal/expand"
	"github.com/passagekit/passage/internal/rank"
	"github.com/passagekit/passage/internal/reranker"
	"github.com/passagekit/passage/internal/retriever"
	"github.com/passagekit/passage/internal/server"
	"github.com/passagekit/passage/internal/tokens"
	"github.com/passagekit/passage/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting retrieval service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize the pooled Qdrant store. Connections are created
	// lazily, so an unreachable store delays failure to the first call.
	store := vectorstore.NewPooledStore(
		func(ctx context.Context) (vectorstore.VectorStore, error) {
			return vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
		},
		vectorstore.PooledStoreConfig{
			Pool: vectorstore.PoolConfig{
				Size:           cfg.PoolSize,
				AcquireTimeout: cfg.PoolAcquireTimeout,
			},
			Breaker: vectorstore.BreakerConfig{
				FailureThreshold: cfg.BreakerFailureThreshold,
				OpenDuration:     cfg.BreakerOpenDuration,
			},
			Retry: vectorstore.RetryConfig{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    cfg.RetryMaxDelay,
			},
			Logger: logger,
		},
	)
	defer store.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.HealthCheck(pingCtx); err != nil {
		slog.Warn("Qdrant unreachable at startup, retrieval will fail until it recovers", "error", err)
	} else {
		slog.Info("connected to Qdrant", "url", cfg.QdrantGRPCURL)
	}
	pingCancel()

	// Initialize the embedder
	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer emb.Close()
	slog.Info("initialized embedder", "provider", cfg.EmbedderProvider, "model", cfg.EmbeddingModel)

	// Optional query expansion
	expCfg := expand.Config{
		Strategy:    expand.Strategy(cfg.ExpansionStrategy),
		MaxVariants: cfg.ExpansionMax,
	}
	if cfg.SynonymsPath != "" {
		synonyms, err := expand.LoadSynonyms(cfg.SynonymsPath)
		if err != nil {
			return fmt.Errorf("failed to load synonyms: %w", err)
		}
		expCfg.Synonyms = synonyms
	}
	expander, err := expand.New(expCfg)
	if err != nil {
		return fmt.Errorf("failed to create expander: %w", err)
	}

	opts := []retriever.Option{
		retriever.WithTokenCounter(tokens.NewTiktoken(cfg.TokenEncoding)),
	}
	if expander.Enabled() {
		opts = append(opts, retriever.WithExpander(expander))
		slog.Info("query expansion enabled", "strategy", cfg.ExpansionStrategy)
	}

	// Optional cross-encoder re-ranking
	if cfg.RerankURL != "" {
		ce, err := reranker.NewCrossEncoder(reranker.CrossEncoderConfig{
			URL:       cfg.RerankURL,
			Model:     cfg.RerankModel,
			BatchSize: cfg.RerankBatchSize,
			Timeout:   cfg.RerankTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create re-ranker: %w", err)
		}
		opts = append(opts, retriever.WithReranker(ce))
		slog.Info("cross-encoder re-ranking enabled", "model", cfg.RerankModel)
	}

	retr := retriever.New(emb, store, retriever.Config{
		Collection: cfg.DefaultCollection,
		TopK:       cfg.DefaultTopK,
		FinalK:     cfg.DefaultFinalK,
		Budget:     cfg.DefaultBudget,
		Weights:    rank.FusionWeights{Dense: cfg.DenseWeight, Lexical: cfg.LexicalWeight},
		BM25:       rank.BM25Params{K1: cfg.BM25K1, B: cfg.BM25B},
	}, opts...)

	// Authentication
	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
		jwtCfg.Expiry = cfg.JWTExpiry
		jwtManager = auth.NewJWTManager(jwtCfg)
	}
	authenticator := auth.NewAuthenticator(cfg.APIKeys, jwtManager)
	if authenticator.Enabled() {
		slog.Info("authentication enabled", "api_keys", len(cfg.APIKeys), "jwt", jwtManager != nil)
	} else {
		slog.Warn("authentication disabled, set API_KEYS or JWT_SECRET to require credentials")
	}

	srv := server.New(server.Config{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		AllowedOrigins: []string{"*"}, // Configure in production
		Authenticator:  authenticator,
		MCPEnabled:     cfg.MCPEnabled,
	}, retr, store)

	// Start server
	errCh := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// newEmbedder builds the configured provider wrapped in the embedding
// service with caching and normalization.
func newEmbedder(cfg *config.Config, logger *slog.Logger) (*embedder.Service, error) {
	var provider embedder.Embedder
	switch cfg.EmbedderProvider {
	case "ollama":
		provider = embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.EmbeddingModel,
		})
	case "openai":
		provider = embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.EmbeddingModel,
		})
	default:
		return nil, fmt.Errorf("unknown embedder provider: %q", cfg.EmbedderProvider)
	}

	var cache *embedder.Cache
	if cfg.EmbeddingCacheSize > 0 {
		cache = embedder.NewCache(cfg.EmbeddingCacheSize, 15*time.Minute)
	}

	return embedder.NewService(provider, embedder.ServiceConfig{
		MaxTextLen: cfg.EmbeddingMaxTextLen,
		Normalize:  cfg.EmbeddingNormalize,
		Cache:      cache,
		Logger:     logger,
	}), nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
