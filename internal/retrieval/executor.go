package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

const (
	exactMatchConfidence    = 0.9
	exactFallbackConfidence = 0.1
	errorMatchConfidence    = 0.8
	errorNoMatchConfidence  = 0.3
)

// errorHandlingTerms are appended to error queries to pull in handling code.
var errorHandlingTerms = []string{"exception", "error handling", "try catch", "throw", "null check"}

// errorLexicon marks a fragment as error handling code.
var errorLexicon = []string{"try", "catch", "throw", "exception", "error", "null"}

// flowTerms are appended to flow queries to favour orchestration code.
var flowTerms = []string{"workflow", "process", "sequence", "calls", "invokes"}

// StrategyResult is the raw output of one strategy before fusion.
type StrategyResult struct {
	Primary    []storage.Fragment
	Supporting []storage.Fragment
	Confidence float64
	// Failed is set when the underlying index or embedder could not serve the query.
	Failed bool
}

// Executor runs the retrieval algorithm selected by classification.
type Executor struct {
	index    VectorIndex
	embedder Embedder
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(index VectorIndex, embedder Embedder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		index:    index,
		embedder: embedder,
		logger:   logger,
	}
}

// Execute dispatches on the classified strategy. Index and embedding failures
// are logged and yield an empty result with zero confidence.
func (x *Executor) Execute(ctx context.Context, query string, c Classification, topK int) StrategyResult {
	switch c.Strategy {
	case SpecificClass:
		filters := make([]storage.MetadataFilter, 0, len(c.Entities.ClassNames))
		for _, name := range c.Entities.ClassNames {
			filters = append(filters, storage.MetadataFilter{ClassName: name})
		}
		return x.exactSearch(ctx, query, filters, topK)
	case SpecificMethod:
		filters := make([]storage.MetadataFilter, 0, len(c.Entities.MethodNames))
		for _, name := range c.Entities.MethodNames {
			filters = append(filters, storage.MetadataFilter{MethodName: strings.TrimSuffix(name, "()")})
		}
		return x.exactSearch(ctx, query, filters, topK)
	case ErrorAnalysis:
		return x.errorSearch(ctx, query, topK)
	case FlowUnderstanding:
		return x.defaultSearch(ctx, query+" "+strings.Join(flowTerms, " "), c.Confidence, topK)
	default:
		return x.defaultSearch(ctx, query, c.Confidence, topK)
	}
}

// exactSearch runs one metadata filter per entity, each capped at
// topK/len(filters), and unions the results. An empty union falls back to
// semantic search on the raw query.
func (x *Executor) exactSearch(ctx context.Context, query string, filters []storage.MetadataFilter, topK int) StrategyResult {
	var found []storage.Fragment
	if len(filters) > 0 {
		perEntity := topK / len(filters)
		seen := make(map[string]struct{})
		for _, f := range filters {
			fragments, err := x.index.Filter(ctx, f, perEntity)
			if err != nil {
				x.logger.Warn("exact filter failed", "class", f.ClassName, "method", f.MethodName, "error", err)
				continue
			}
			for _, frag := range fragments {
				key := fragmentKey(frag)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				found = append(found, frag)
			}
		}
	}

	if len(found) > 0 {
		return StrategyResult{Primary: found, Confidence: exactMatchConfidence}
	}

	fragments, err := x.Semantic(ctx, query, topK)
	if err != nil {
		x.logger.Warn("semantic fallback failed", "error", err)
		return StrategyResult{Failed: true}
	}
	return StrategyResult{Primary: fragments, Confidence: exactFallbackConfidence}
}

// errorSearch augments the query with error handling vocabulary and splits
// the hits: fragments mentioning error handling go to primary, capped at
// topK/2, and the rest fill supporting up to topK in total.
func (x *Executor) errorSearch(ctx context.Context, query string, topK int) StrategyResult {
	augmented := query + " " + strings.Join(errorHandlingTerms, " ")
	fragments, err := x.Semantic(ctx, augmented, topK)
	if err != nil {
		x.logger.Warn("error analysis search failed", "error", err)
		return StrategyResult{Failed: true}
	}

	primaryCap := topK / 2
	var primary, rest []storage.Fragment
	for _, f := range fragments {
		if len(primary) < primaryCap && mentionsErrorHandling(f.Document) {
			primary = append(primary, f)
			continue
		}
		rest = append(rest, f)
	}

	supportingCap := topK - len(primary)
	if len(rest) > supportingCap {
		rest = rest[:supportingCap]
	}

	confidence := errorNoMatchConfidence
	if len(primary) > 0 {
		confidence = errorMatchConfidence
	}
	return StrategyResult{Primary: primary, Supporting: rest, Confidence: confidence}
}

func (x *Executor) defaultSearch(ctx context.Context, query string, confidence float64, topK int) StrategyResult {
	fragments, err := x.Semantic(ctx, query, topK)
	if err != nil {
		x.logger.Warn("semantic search failed", "error", err)
		return StrategyResult{Failed: true}
	}
	return StrategyResult{Primary: fragments, Confidence: confidence}
}

// Semantic embeds text and returns the topK nearest fragments.
func (x *Executor) Semantic(ctx context.Context, text string, topK int) ([]storage.Fragment, error) {
	if topK <= 0 {
		return nil, nil
	}
	vector, err := x.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	fragments, err := x.index.Nearest(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("nearest search: %w", err)
	}
	return fragments, nil
}

func mentionsErrorHandling(doc string) bool {
	lower := strings.ToLower(doc)
	for _, term := range errorLexicon {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
