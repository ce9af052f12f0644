package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ghclient "github.com/bull/rca-code-retrieval/internal/github"
	"github.com/bull/rca-code-retrieval/internal/indexer"
	"github.com/bull/rca-code-retrieval/internal/javaparse"
)

var (
	clearFirst   bool
	indexVerbose bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index every Java method under a local directory",
	Long: `Walks the directory (default: PROJECT_PATH), splits each .java file into
method fragments, embeds them and upserts them into Qdrant. Re-indexing the
same code is idempotent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.ProjectPath
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no project path: pass one or set PROJECT_PATH")
		}
		src, err := indexer.NewDirSource(dir)
		if err != nil {
			return err
		}
		return runIndex(cmdContext(cmd), src)
	},
}

var indexGitHubCmd = &cobra.Command{
	Use:   "index-github owner repo [path]",
	Short: "Index every Java method in a GitHub repository directory",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		basePath := ""
		if len(args) == 3 {
			basePath = args[2]
		}
		client, err := ghclient.NewClient(cfg.GitHubToken)
		if err != nil {
			return fmt.Errorf("failed to create GitHub client: %w", err)
		}
		return runIndex(cmdContext(cmd), ghclient.NewSource(client, args[0], args[1], basePath))
	},
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, indexGitHubCmd} {
		c.Flags().BoolVar(&clearFirst, "clear", false, "delete the collection before indexing")
		c.Flags().BoolVarP(&indexVerbose, "verbose", "v", false, "log every file")
		rootCmd.AddCommand(c)
	}
}

func runIndex(ctx context.Context, src indexer.Source) error {
	start := time.Now()

	_, embedder, err := newEmbedder()
	if err != nil {
		return err
	}

	index, err := connectIndex(ctx)
	if err != nil {
		return err
	}
	defer index.Close()

	if clearFirst {
		fmt.Println("Clearing existing collection...")
		if err := index.ClearCollection(ctx); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if err := index.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to recreate collection: %w", err)
		}
	}

	fmt.Printf("Indexing %s...\n", src.Name())
	pipeline := indexer.NewPipeline(javaparse.NewChunker(), embedder, index, indexer.DefaultBatchSize, newLogger(indexVerbose))
	result, err := pipeline.Index(ctx, src)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Java files: %d/%d\n", result.ParsedFiles, result.TotalFiles)
	fmt.Printf("  Fragments:  %d/%d\n", result.IndexedFragments, result.TotalFragments)
	if result.SkippedBatches > 0 {
		fmt.Printf("  Skipped batches: %d\n", result.SkippedBatches)
	}
	if result.Revision != "" {
		fmt.Printf("  Revision:   %s\n", result.Revision)
	}
	if len(result.FailedFiles) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.FailedFiles {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	fmt.Printf("\nTotal time: %s\n", time.Since(start).Round(time.Second))
	return nil
}
