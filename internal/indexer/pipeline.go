package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

// DefaultBatchSize is the number of fragments embedded and upserted together.
const DefaultBatchSize = 50

// Source enumerates and reads Java files.
type Source interface {
	Name() string
	Revision(ctx context.Context) (string, error)
	ListFiles(ctx context.Context) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Chunker splits one source file into method fragments.
type Chunker interface {
	Chunk(ctx context.Context, path string, src []byte) ([]storage.Fragment, error)
}

// Embedder embeds fragment text in bulk.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Store receives embedded fragments. Upserts are idempotent by fragment id.
type Store interface {
	Upsert(ctx context.Context, fragments []storage.EmbeddedFragment) error
}

// IndexResult contains statistics about an indexing run.
type IndexResult struct {
	Source           string
	Revision         string
	TotalFiles       int
	ParsedFiles      int
	TotalFragments   int
	IndexedFragments int
	SkippedBatches   int
	FailedFiles      []FailedFile
	Duration         time.Duration
}

// FailedFile is a file that could not be read or parsed.
type FailedFile struct {
	Path   string
	Reason string
}

// Pipeline walks a source, chunks every Java file and stores the embedded fragments.
type Pipeline struct {
	chunker   Chunker
	embedder  Embedder
	store     Store
	batchSize int
	logger    *slog.Logger
}

// NewPipeline creates an indexing pipeline. A non-positive batchSize uses DefaultBatchSize.
func NewPipeline(chunker Chunker, embedder Embedder, store Store, batchSize int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Index chunks every file of src and upserts the fragments in batches.
// Files that fail to read or parse are recorded and skipped. A batch whose
// embedding fails is skipped; a failed upsert aborts the run.
func (p *Pipeline) Index(ctx context.Context, src Source) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Source: src.Name()}

	revision, err := src.Revision(ctx)
	if err != nil {
		p.logger.Warn("Could not determine source revision", "source", src.Name(), "error", err)
	}
	result.Revision = revision
	p.logger.Info("Starting indexing", "source", src.Name(), "revision", revision)

	paths, err := src.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	result.TotalFiles = len(paths)
	p.logger.Info("Found Java files", "count", len(paths))

	var fragments []storage.Fragment
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileFragments, err := p.processFile(ctx, src, path)
		if err != nil {
			p.logger.Warn("Failed to process file", "path", path, "error", err)
			result.FailedFiles = append(result.FailedFiles, FailedFile{Path: path, Reason: err.Error()})
			continue
		}
		result.ParsedFiles++
		fragments = append(fragments, fileFragments...)
	}
	result.TotalFragments = len(fragments)

	for i := 0; i < len(fragments); i += p.batchSize {
		end := min(i+p.batchSize, len(fragments))
		indexed, err := p.indexBatch(ctx, fragments[i:end])
		if err != nil {
			return nil, fmt.Errorf("store batch %d-%d: %w", i, end, err)
		}
		if indexed == 0 {
			result.SkippedBatches++
			continue
		}
		result.IndexedFragments += indexed
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"files", result.ParsedFiles,
		"failed", len(result.FailedFiles),
		"fragments", result.IndexedFragments,
		"skipped_batches", result.SkippedBatches,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, src Source, path string) ([]storage.Fragment, error) {
	content, err := src.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	fragments, err := p.chunker.Chunk(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	p.logger.Debug("Chunked file", "path", path, "fragments", len(fragments))
	return fragments, nil
}

// indexBatch returns the number of fragments stored, or 0 when embedding failed.
func (p *Pipeline) indexBatch(ctx context.Context, batch []storage.Fragment) (int, error) {
	texts := make([]string, len(batch))
	for i, f := range batch {
		texts[i] = f.Document
	}

	embeddings, err := p.embedder.EmbedMany(ctx, texts)
	if err != nil {
		p.logger.Warn("Skipping batch due to embedding failure", "size", len(batch), "error", err)
		return 0, nil
	}

	embedded := make([]storage.EmbeddedFragment, len(batch))
	for i, f := range batch {
		embedded[i] = storage.EmbeddedFragment{Fragment: f, Embedding: embeddings[i]}
	}
	if err := p.store.Upsert(ctx, embedded); err != nil {
		return 0, err
	}
	p.logger.Info("Upserted fragments", "count", len(embedded))
	return len(embedded), nil
}
