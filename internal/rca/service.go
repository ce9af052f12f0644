// Package rca assembles retrieved code, logs and conversation history into an
// LLM prompt and records each exchange in the session.
package rca

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rca-code-retrieval/internal/retrieval"
)

// FallbackAnalysis is returned in place of the analysis when the LLM call fails.
const FallbackAnalysis = "Failed to get analysis from the LLM gateway."

const (
	// historyWindow is the number of recent turns considered per request.
	historyWindow = 6
	// promptHistoryTurns is the number of turns summarised in the prompt.
	promptHistoryTurns = 4
)

// ErrEmptyQuery is returned when a request carries neither a query nor logs.
var ErrEmptyQuery = errors.New("query or logs required")

// Analyzer produces an analysis for a prompt. Implemented by llm.Gateway.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// Retriever finds code for a query. Implemented by retrieval.Engine.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query, topK int) *retrieval.RetrievalResult
}

// Request is one analysis request.
type Request struct {
	Query     string               `json:"query"`
	SessionID string               `json:"session_id,omitempty"`
	Logs      []retrieval.LogEntry `json:"logs,omitempty"`
}

// SearchMetadata summarises how code was retrieved.
type SearchMetadata struct {
	Strategy        retrieval.Strategy `json:"strategy"`
	Confidence      float64            `json:"confidence"`
	Entities        retrieval.Entities `json:"entities"`
	PrimaryCount    int                `json:"primary_count"`
	SupportingCount int                `json:"supporting_count"`
	IsFollowup      bool               `json:"is_followup"`
	Themes          []string           `json:"conversation_themes,omitempty"`
	LogKeywords     []string           `json:"log_keywords,omitempty"`
	FailedPasses    []string           `json:"failed_passes,omitempty"`
}

// Response is the outcome of one analysis.
type Response struct {
	Query                   string               `json:"query"`
	Analysis                string               `json:"analysis"`
	Structured              *StructuredRCA       `json:"structured_rca,omitempty"`
	SearchMetadata          SearchMetadata       `json:"search_metadata"`
	CodeChunksUsed          int                  `json:"code_chunks_used"`
	LogCorrelation          []retrieval.LogEntry `json:"log_correlation"`
	ConversationContextUsed bool                 `json:"conversation_context_used"`
	SessionID               string               `json:"session_id"`
}

// Service runs retrieval, asks the LLM for an analysis and records the exchange.
type Service struct {
	retriever Retriever
	analyzer  Analyzer
	sessions  *retrieval.SessionStore
	topK      int
	logger    *slog.Logger
}

// NewService creates a Service. sessions may be shared with the retriever.
func NewService(retriever Retriever, analyzer Analyzer, sessions *retrieval.SessionStore, topK int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if sessions == nil {
		sessions = retrieval.NewSessionStore(0, 0, 0)
	}
	return &Service{
		retriever: retriever,
		analyzer:  analyzer,
		sessions:  sessions,
		topK:      topK,
		logger:    logger,
	}
}

// Analyze answers one request. A request without a session id starts a new
// session. LLM failures do not fail the request; the analysis then carries
// FallbackAnalysis.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" && len(req.Logs) == 0 {
		return nil, ErrEmptyQuery
	}
	if query == "" {
		query = req.Logs[0].Message
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history := retrieval.Recent(s.sessions.History(sessionID), historyWindow)
	result := s.retriever.Retrieve(ctx, retrieval.Query{
		Text:      query,
		SessionID: sessionID,
		Logs:      req.Logs,
	}, s.topK)

	prompt := BuildPrompt(query, retrieval.Recent(history, promptHistoryTurns), req.Logs, result.Fragments())

	analysis, err := s.analyzer.Analyze(ctx, prompt)
	if err != nil {
		s.logger.Error("LLM analysis failed", "session", sessionID, "error", err)
		analysis = FallbackAnalysis
	}

	now := time.Now()
	s.sessions.Append(sessionID,
		retrieval.ConversationTurn{Role: retrieval.RoleUser, Content: query, Timestamp: now},
		retrieval.ConversationTurn{Role: retrieval.RoleAssistant, Content: analysis, Timestamp: now},
	)

	resp := &Response{
		Query:    query,
		Analysis: analysis,
		SearchMetadata: SearchMetadata{
			Strategy:        result.Strategy,
			Confidence:      result.Confidence,
			Entities:        result.Classification.Entities,
			PrimaryCount:    len(result.Primary),
			SupportingCount: len(result.Supporting),
			IsFollowup:      result.IsFollowup,
			Themes:          result.Themes,
			LogKeywords:     result.LogKeywords,
			FailedPasses:    result.FailedPasses,
		},
		CodeChunksUsed:          len(result.Primary),
		LogCorrelation:          []retrieval.LogEntry{},
		ConversationContextUsed: len(history) > 0,
		SessionID:               sessionID,
	}
	if result.Correlation != nil && len(result.Correlation.Matched) > 0 {
		resp.LogCorrelation = result.Correlation.Matched
	}
	if err == nil {
		resp.Structured = ParseStructured(analysis)
	}

	s.logger.Info("Analysis complete",
		"session", sessionID,
		"strategy", result.Strategy.String(),
		"code_chunks", resp.CodeChunksUsed,
		"correlated_logs", len(resp.LogCorrelation),
	)
	return resp, nil
}

// History returns the recorded turns of a session.
func (s *Service) History(sessionID string) []retrieval.ConversationTurn {
	return s.sessions.History(sessionID)
}
