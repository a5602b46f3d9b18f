package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/passagekit/passage/internal/config"
	"github.com/passagekit/passage/internal/embedder"
	"github.com/passagekit/passage/internal/registry"
	"github.com/passagekit/passage/internal/vectorstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "passagectl",
		Short: "Manage documents in the passage retrieval service",
		Long: "passagectl ingests documents into the vector store, inspects the\n" +
			"document registry, and mints service tokens. Connection settings\n" +
			"come from the environment and an optional .env file.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newIngestCmd(), newListCmd(), newDeleteCmd(), newTokenCmd())
	return root
}

// newEmbedder builds the configured provider wrapped in the embedding
// service. The cache is left off; a one-shot process never sees a
// repeated text.
func newEmbedder(cfg *config.Config) (*embedder.Service, error) {
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

	return embedder.NewService(provider, embedder.ServiceConfig{
		MaxTextLen: cfg.EmbeddingMaxTextLen,
		Normalize:  cfg.EmbeddingNormalize,
	}), nil
}

func newStore(ctx context.Context, cfg *config.Config) (*vectorstore.QdrantStore, error) {
	return vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
}

// newRegistry returns nil when no database is configured.
func newRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	return registry.NewPostgres(ctx, cfg.DatabaseURL)
}
