// Package main provides the MCP and HTTP server entry point for RCA code retrieval.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bull/rca-code-retrieval/internal/config"
	"github.com/bull/rca-code-retrieval/internal/embedding"
	"github.com/bull/rca-code-retrieval/internal/llm"
	mcpserver "github.com/bull/rca-code-retrieval/internal/mcp"
	"github.com/bull/rca-code-retrieval/internal/rca"
	"github.com/bull/rca-code-retrieval/internal/retrieval"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

func main() {
	// stdout carries the MCP stdio protocol, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	index, err := storage.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		return err
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx); err != nil {
		return err
	}

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		return err
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, 0)
	gateway := llm.NewGateway(client.Client(), cfg.LLMModel, logger)

	sessions := retrieval.NewSessionStore(cfg.SessionMaxTurns, cfg.SessionMaxSessions, cfg.SessionTTL)
	engine := retrieval.NewEngine(index, embedding.NewCachedEmbedder(embedder, cfg.EmbeddingCacheSize), logger,
		retrieval.WithSessions(sessions),
		retrieval.WithWeights(retrieval.Weights{
			Direct:  cfg.WeightDirect,
			Log:     cfg.WeightLog,
			Keyword: cfg.WeightKeyword,
			Theme:   cfg.WeightTheme,
		}),
	)
	service := rca.NewService(engine, gateway, sessions, cfg.TopK, logger)

	server := mcpserver.NewServer(&mcpserver.Config{
		Retriever: engine,
		Analyst:   service,
		Index:     index,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(index, sessions))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.HandleFunc("/analyze", rca.NewAnalyzeHandler(service))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "collection", index.Collection())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode still serves health, metrics and /analyze for local testing.
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting RCA code retrieval MCP server (stdio mode)")
	return server.Run(ctx)
}
