package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/rca-code-retrieval/internal/llm"
	"github.com/bull/rca-code-retrieval/internal/rca"
	"github.com/bull/rca-code-retrieval/internal/retrieval"
)

const inspectSamples = 5

var (
	queryTopK    int
	querySession string
	queryLogs    []string
	queryVerbose bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify query",
	Short: "Show the retrieval strategy chosen for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(retrieval.NewClassifier().Classify(strings.Join(args, " ")))
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the fragment count and a few stored fragments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		index, err := connectIndex(ctx)
		if err != nil {
			return err
		}
		defer index.Close()

		info, err := index.GetCollectionInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Collection '%s' contains %d fragments.\n", info.Name, info.PointsCount)
		if info.PointsCount == 0 {
			return nil
		}

		samples, err := index.Sample(ctx, inspectSamples)
		if err != nil {
			return err
		}
		fmt.Println("\n--- Sample of Stored Fragments ---")
		for i, f := range samples {
			meta, _ := json.MarshalIndent(f.Metadata, "", "  ")
			fmt.Printf("\n----- Item %d -----\nID: %s\nMETADATA:\n%s\nCODE:\n%s\n", i+1, f.ID, meta, f.Document)
		}
		return nil
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve query",
	Short: "Run hybrid retrieval and print the ranked fragments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		_, embedder, err := newEmbedder()
		if err != nil {
			return err
		}
		index, err := connectIndex(ctx)
		if err != nil {
			return err
		}
		defer index.Close()

		engine := retrieval.NewEngine(index, embedder, newLogger(queryVerbose), retrieval.WithWeights(configuredWeights()))
		result := engine.Retrieve(ctx, retrieval.Query{
			Text:      strings.Join(args, " "),
			SessionID: querySession,
			Logs:      logEntries(queryLogs),
		}, topK())
		return printJSON(result)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze query",
	Short: "Run a full root cause analysis with the LLM",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		client, embedder, err := newEmbedder()
		if err != nil {
			return err
		}
		index, err := connectIndex(ctx)
		if err != nil {
			return err
		}
		defer index.Close()

		logger := newLogger(queryVerbose)
		sessions := retrieval.NewSessionStore(cfg.SessionMaxTurns, cfg.SessionMaxSessions, cfg.SessionTTL)
		engine := retrieval.NewEngine(index, embedder, logger,
			retrieval.WithSessions(sessions),
			retrieval.WithWeights(configuredWeights()),
		)
		service := rca.NewService(engine, llm.NewGateway(client.Client(), cfg.LLMModel, logger), sessions, topK(), logger)

		resp, err := service.Analyze(ctx, rca.Request{
			Query:     strings.Join(args, " "),
			SessionID: querySession,
			Logs:      logEntries(queryLogs),
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, analyzeCmd} {
		c.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum primary fragments (default: TOP_K)")
		c.Flags().StringVar(&querySession, "session", "", "conversation session id")
		c.Flags().StringArrayVar(&queryLogs, "log", nil, "log line to correlate; repeatable")
		c.Flags().BoolVarP(&queryVerbose, "verbose", "v", false, "debug logging")
	}
	rootCmd.AddCommand(classifyCmd, inspectCmd, retrieveCmd, analyzeCmd)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func topK() int {
	if queryTopK > 0 {
		return queryTopK
	}
	return cfg.TopK
}

func configuredWeights() retrieval.Weights {
	return retrieval.Weights{
		Direct:  cfg.WeightDirect,
		Log:     cfg.WeightLog,
		Keyword: cfg.WeightKeyword,
		Theme:   cfg.WeightTheme,
	}
}

// logEntries turns "LEVEL message" lines into log entries.
func logEntries(lines []string) []retrieval.LogEntry {
	var entries []retrieval.LogEntry
	for _, line := range lines {
		entry := retrieval.LogEntry{Message: line}
		if level, rest, ok := strings.Cut(line, " "); ok && isLevel(level) {
			entry.Level, entry.Message = strings.TrimSuffix(level, ":"), rest
		}
		entries = append(entries, entry)
	}
	return entries
}

func isLevel(s string) bool {
	switch strings.TrimSuffix(s, ":") {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
		return true
	}
	return false
}
