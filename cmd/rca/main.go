// Package main provides the rca CLI for indexing Java projects and querying the index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bull/rca-code-retrieval/internal/config"
	"github.com/bull/rca-code-retrieval/internal/embedding"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rca",
	Short: "Root cause analysis code retrieval tool",
	Long: `CLI for indexing Java source code into Qdrant and running hybrid
code retrieval and root cause analysis against it.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION  Collection name (default: java_code_analysis)
  OPENAI_API_KEY     OpenAI API key for embeddings and analysis (required)
  PROJECT_PATH       Default directory for the index command
  GITHUB_TOKEN       GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connectIndex opens the configured collection, creating it if missing.
func connectIndex(ctx context.Context) (*storage.QdrantIndex, error) {
	fmt.Fprintf(os.Stderr, "Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	index, err := storage.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return index, nil
}

func newEmbedder() (*embedding.Client, *embedding.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return client, embedding.NewEmbedder(client, cfg.EmbeddingModel, 0), nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
