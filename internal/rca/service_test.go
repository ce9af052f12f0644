package rca

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rca-code-retrieval/internal/retrieval"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

var getUser = storage.Fragment{
	ID:       "UserService.java::getUser::10-20",
	Document: "public User getUser(long id) { return repo.find(id); }",
	Metadata: storage.FragmentMetadata{
		FilePath:   "UserService.java",
		ClassName:  "UserService",
		MethodName: "getUser",
		StartLine:  10,
		EndLine:    20,
	},
}

type stubRetriever struct {
	queries []retrieval.Query
}

func (s *stubRetriever) Retrieve(ctx context.Context, q retrieval.Query, topK int) *retrieval.RetrievalResult {
	s.queries = append(s.queries, q)
	result := &retrieval.RetrievalResult{
		Primary:    []retrieval.ScoredFragment{{Fragment: getUser, Weight: 1.5}},
		Strategy:   retrieval.ErrorAnalysis,
		Confidence: 0.8,
	}
	if len(q.Logs) > 0 {
		result.Correlation = &retrieval.Correlation{Matched: q.Logs[:1], Score: 1}
	}
	return result
}

type stubAnalyzer struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func TestAnalyze(t *testing.T) {
	analyzer := &stubAnalyzer{reply: `{"conversational_analysis": "repo.find returns null", "structured_rca": {"root_cause": "missing null check", "confidence_score": 0.9, "recommended_action": "check for null"}}`}
	svc := NewService(&stubRetriever{}, analyzer, nil, 5, nil)

	resp, err := svc.Analyze(context.Background(), Request{
		Query: "Why does UserService throw a NullPointerException?",
		Logs:  []retrieval.LogEntry{{Level: "ERROR", Message: "NullPointerException at UserService.getUser"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, retrieval.ErrorAnalysis, resp.SearchMetadata.Strategy)
	assert.Equal(t, 1, resp.CodeChunksUsed)
	assert.Len(t, resp.LogCorrelation, 1)
	assert.False(t, resp.ConversationContextUsed)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, "missing null check", resp.Structured.RootCause)

	require.Len(t, analyzer.prompts, 1)
	assert.Contains(t, analyzer.prompts[0], "public User getUser(long id)")
	assert.Contains(t, analyzer.prompts[0], "ERROR NullPointerException at UserService.getUser")
	assert.Contains(t, analyzer.prompts[0], "No previous conversation history.")

	history := svc.History(resp.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, retrieval.RoleUser, history[0].Role)
	assert.Equal(t, retrieval.RoleAssistant, history[1].Role)
}

func TestAnalyze_SecondTurnUsesHistory(t *testing.T) {
	analyzer := &stubAnalyzer{reply: "plain text answer"}
	sessions := retrieval.NewSessionStore(10, 10, time.Hour)
	svc := NewService(&stubRetriever{}, analyzer, sessions, 5, nil)

	first, err := svc.Analyze(context.Background(), Request{Query: "Why does UserService fail?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", first.SessionID)
	assert.Nil(t, first.Structured)

	second, err := svc.Analyze(context.Background(), Request{Query: "and the controller?", SessionID: "s1"})
	require.NoError(t, err)

	assert.True(t, second.ConversationContextUsed)
	assert.Contains(t, analyzer.prompts[1], `The user mentioned: "Why does UserService fail?"`)
	assert.Len(t, sessions.History("s1"), 4)
}

func TestAnalyze_LLMFailureFallsBack(t *testing.T) {
	svc := NewService(&stubRetriever{}, &stubAnalyzer{err: errors.New("gateway down")}, nil, 5, nil)

	resp, err := svc.Analyze(context.Background(), Request{Query: "why", SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnalysis, resp.Analysis)
	assert.Nil(t, resp.Structured)
	assert.Len(t, svc.History("s"), 2)
}

func TestAnalyze_EmptyRequest(t *testing.T) {
	svc := NewService(&stubRetriever{}, &stubAnalyzer{}, nil, 5, nil)
	_, err := svc.Analyze(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnalyze_LogsOnlyUseFirstMessageAsQuery(t *testing.T) {
	retriever := &stubRetriever{}
	svc := NewService(retriever, &stubAnalyzer{reply: "ok"}, nil, 5, nil)

	resp, err := svc.Analyze(context.Background(), Request{Logs: []retrieval.LogEntry{{Message: "FATAL timeout in OrderService"}}})
	require.NoError(t, err)
	assert.Equal(t, "FATAL timeout in OrderService", resp.Query)
	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "FATAL timeout in OrderService", retriever.queries[0].Text)
}

func TestBuildPrompt_TruncatesHistory(t *testing.T) {
	long := strings.Repeat("x", 200)
	prompt := BuildPrompt("q", []retrieval.ConversationTurn{{Role: retrieval.RoleUser, Content: long}}, nil, nil)

	assert.Contains(t, prompt, strings.Repeat("x", 80)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 81))
	assert.Contains(t, prompt, "No logs provided.")
	assert.Contains(t, prompt, "No specific code snippets were found to be relevant.")
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  *StructuredRCA
	}{
		{
			name:  "fenced json",
			reply: "```json\n{\"conversational_analysis\": \"a\", \"structured_rca\": {\"root_cause\": \"b\", \"confidence_score\": 0.5, \"recommended_action\": \"c\"}}\n```",
			want:  &StructuredRCA{RootCause: "b", ConfidenceScore: 0.5, RecommendedAction: "c"},
		},
		{name: "plain text", reply: "no json here", want: nil},
		{name: "empty structured", reply: `{"conversational_analysis": "a", "structured_rca": {}}`, want: nil},
		{name: "broken json", reply: `{"structured_rca": {"root_cause": }`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStructured(tt.reply))
		})
	}
}
