package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

const (
	DefaultTopK = 10

	keywordPrefix = "Code related to "
	themePrefix   = "Follow-up on "
)

var tracer = otel.Tracer("rca.retrieval")

// Engine classifies a query, runs the selected strategy alongside the log,
// keyword and theme passes, and fuses everything into one ranking.
type Engine struct {
	classifier *Classifier
	executor   *Executor
	correlator *LogCorrelator
	sessions   *SessionStore
	weights    Weights
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeights overrides the fusion weights.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithSessions attaches a session store used for themes and follow-up detection.
func WithSessions(s *SessionStore) EngineOption {
	return func(e *Engine) { e.sessions = s }
}

// NewEngine creates an Engine over the given index and embedder.
func NewEngine(index VectorIndex, embedder Embedder, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		classifier: NewClassifier(),
		executor:   NewExecutor(index, embedder, logger),
		correlator: NewLogCorrelator(),
		weights:    DefaultWeights(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify exposes the engine's classifier.
func (e *Engine) Classify(query string) Classification {
	return e.classifier.Classify(query)
}

// Retrieve runs a full hybrid retrieval. It never fails: passes that cannot
// be served are logged, recorded in FailedPasses, and contribute nothing.
//
// Confidence is the strategy pass's confidence. When the strategy pass fails
// it is 0 even if the log, keyword or theme passes filled Primary, so callers
// should check Primary rather than Confidence to detect an empty result.
func (e *Engine) Retrieve(ctx context.Context, q Query, topK int) *RetrievalResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("logs", len(q.Logs)),
	))
	defer span.End()

	classification := e.classifier.Classify(q.Text)
	strategyTotal.WithLabelValues(classification.Strategy.String()).Inc()
	span.SetAttributes(
		attribute.String("strategy", classification.Strategy.String()),
		attribute.Float64("classification_confidence", classification.Confidence),
	)

	var history []ConversationTurn
	if e.sessions != nil {
		history = e.sessions.History(q.SessionID)
	}
	themes := Themes(history)
	keywords := LogKeywords(q.Logs)

	var (
		strategy                      StrategyResult
		logFrags, kwFrags, themeFrags []storage.Fragment
		logErr, kwErr, themeErr       error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		strategy = e.executor.Execute(gctx, q.Text, classification, topK)
		return nil
	})
	if text := logText(q.Logs); text != "" {
		g.Go(func() error {
			logFrags, logErr = e.executor.Semantic(gctx, text, topK)
			return nil
		})
	}
	if len(keywords) > 0 {
		g.Go(func() error {
			kwFrags, kwErr = e.executor.Semantic(gctx, keywordPrefix+strings.Join(keywords, " "), topK)
			return nil
		})
	}
	if len(themes) > 0 {
		g.Go(func() error {
			themeFrags, themeErr = e.executor.Semantic(gctx, themePrefix+strings.Join(themes, ", "), topK)
			return nil
		})
	}
	_ = g.Wait()

	result := &RetrievalResult{
		Strategy:       classification.Strategy,
		Classification: classification,
		LogKeywords:    keywords,
		Themes:         themes,
		IsFollowup:     IsFollowup(q.Text, history),
	}

	if strategy.Failed {
		result.FailedPasses = append(result.FailedPasses, PassDirect)
		recordPass(PassDirect, passFailed)
	} else {
		recordPass(PassDirect, passOK)
	}
	e.notePass(result, PassLog, logText(q.Logs) != "", logErr)
	e.notePass(result, PassKeyword, len(keywords) > 0, kwErr)
	e.notePass(result, PassTheme, len(themes) > 0, themeErr)

	result.Primary = Fuse([]Pass{
		{Name: PassDirect, Fragments: strategy.Primary, Weight: e.weights.Direct},
		{Name: PassLog, Fragments: logFrags, Weight: e.weights.Log},
		{Name: PassKeyword, Fragments: kwFrags, Weight: e.weights.Keyword},
		{Name: PassTheme, Fragments: themeFrags, Weight: e.weights.Theme},
	}, topK)
	result.Supporting = supporting(strategy.Supporting, result.Primary, e.weights.Direct)

	if len(result.Primary) == 0 && len(result.Supporting) == 0 {
		result.Confidence = 0
	} else {
		result.Confidence = strategy.Confidence
	}

	if len(q.Logs) > 0 {
		correlation := e.correlator.Correlate(result.Fragments(), q.Logs)
		result.Correlation = &correlation
	}

	span.SetAttributes(
		attribute.Int("primary", len(result.Primary)),
		attribute.Int("supporting", len(result.Supporting)),
		attribute.Float64("confidence", result.Confidence),
	)
	retrievalDurationSeconds.WithLabelValues(classification.Strategy.String()).Observe(time.Since(start).Seconds())

	e.logger.Debug("retrieval complete",
		"strategy", classification.Strategy.String(),
		"primary", len(result.Primary),
		"supporting", len(result.Supporting),
		"failed_passes", result.FailedPasses,
		"duration", time.Since(start))

	return result
}

func (e *Engine) notePass(result *RetrievalResult, pass string, ran bool, err error) {
	switch {
	case !ran:
		recordPass(pass, passSkipped)
	case err != nil:
		e.logger.Warn("retrieval pass failed", "pass", pass, "error", err)
		result.FailedPasses = append(result.FailedPasses, pass)
		recordPass(pass, passFailed)
	default:
		recordPass(pass, passOK)
	}
}

// supporting keeps strategy supporting fragments that did not make it into
// primary, in their original order.
func supporting(fragments []storage.Fragment, primary []ScoredFragment, weight float64) []ScoredFragment {
	if len(fragments) == 0 {
		return nil
	}
	taken := make(map[string]struct{}, len(primary))
	for _, sf := range primary {
		taken[fragmentKey(sf.Fragment)] = struct{}{}
	}
	var out []ScoredFragment
	for _, f := range fragments {
		key := fragmentKey(f)
		if _, ok := taken[key]; ok {
			continue
		}
		taken[key] = struct{}{}
		out = append(out, ScoredFragment{Fragment: f, Weight: weight})
	}
	return out
}
