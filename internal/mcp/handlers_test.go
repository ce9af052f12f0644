package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rca-code-retrieval/internal/rca"
	"github.com/bull/rca-code-retrieval/internal/retrieval"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

var getUser = storage.Fragment{
	ID:       "UserService.java::getUser::10-20",
	Document: "public User getUser(long id) { return repo.find(id); }",
	Metadata: storage.FragmentMetadata{FilePath: "UserService.java", ClassName: "UserService", MethodName: "getUser", StartLine: 10, EndLine: 20},
}

type fakeRetriever struct {
	last  retrieval.Query
	topK  int
	empty bool
}

func (f *fakeRetriever) Retrieve(ctx context.Context, q retrieval.Query, topK int) *retrieval.RetrievalResult {
	f.last, f.topK = q, topK
	if f.empty {
		return &retrieval.RetrievalResult{Strategy: retrieval.Conceptual}
	}
	result := &retrieval.RetrievalResult{
		Primary:    []retrieval.ScoredFragment{{Fragment: getUser, Weight: 3.7}},
		Strategy:   retrieval.ErrorAnalysis,
		Confidence: 0.8,
	}
	if len(q.Logs) > 0 {
		result.Correlation = &retrieval.Correlation{Matched: q.Logs, Score: 1}
	}
	return result
}

type fakeAnalyst struct {
	last rca.Request
	err  error
}

func (f *fakeAnalyst) Analyze(ctx context.Context, req rca.Request) (*rca.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &rca.Response{
		Query:          req.Query,
		Analysis:       "repo.find returned null",
		Structured:     &rca.StructuredRCA{RootCause: "missing null check", ConfidenceScore: 0.9, RecommendedAction: "guard the lookup"},
		SearchMetadata: rca.SearchMetadata{Strategy: retrieval.ErrorAnalysis},
		CodeChunksUsed: 1,
		LogCorrelation: req.Logs,
		SessionID:      "session-1",
	}, nil
}

type fakeIndex struct {
	fragments map[string]storage.Fragment
	err       error
}

func (f *fakeIndex) Collection() string { return "java_code_analysis" }

func (f *fakeIndex) GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &storage.CollectionInfo{Name: "java_code_analysis", PointsCount: uint64(len(f.fragments))}, nil
}

func (f *fakeIndex) Sample(ctx context.Context, limit int) ([]storage.Fragment, error) {
	var out []storage.Fragment
	for _, frag := range f.fragments {
		if len(out) == limit {
			break
		}
		out = append(out, frag)
	}
	return out, nil
}

func (f *fakeIndex) GetFragment(ctx context.Context, id string) (*storage.Fragment, error) {
	frag, ok := f.fragments[id]
	if !ok {
		return nil, storage.ErrFragmentNotFound
	}
	return &frag, nil
}

func (f *fakeIndex) Health(ctx context.Context) error { return f.err }

func newFakeIndex() *fakeIndex {
	return &fakeIndex{fragments: map[string]storage.Fragment{getUser.ID: getUser}}
}

func TestRetrieveHandler(t *testing.T) {
	retriever := &fakeRetriever{}
	handler := makeRetrieveHandler(retriever)

	_, out, err := handler(context.Background(), nil, RetrieveCodeInput{
		Query:     "Why does UserService throw a NullPointerException?",
		SessionID: "s1",
		TopK:      500,
		Logs:      []LogInput{{Level: "ERROR", Message: "NPE in UserService"}},
	})
	require.NoError(t, err)

	assert.Equal(t, maxTopK, retriever.topK)
	assert.Equal(t, "s1", retriever.last.SessionID)
	assert.Equal(t, "error_analysis", out.Strategy)
	require.Len(t, out.Primary, 1)
	assert.Equal(t, "getUser", out.Primary[0].MethodName)
	assert.InDelta(t, 3.7, out.Primary[0].Weight, 1e-9)
	assert.Empty(t, out.Supporting)
	assert.Len(t, out.CorrelatedLogs, 1)
	assert.Empty(t, out.Message)
}

func TestRetrieveHandler_DefaultsAndEmpty(t *testing.T) {
	retriever := &fakeRetriever{empty: true}
	_, out, err := makeRetrieveHandler(retriever)(context.Background(), nil, RetrieveCodeInput{Query: "caching"})
	require.NoError(t, err)

	assert.Equal(t, defaultTopK, retriever.topK)
	assert.NotEmpty(t, out.Message)

	_, _, err = makeRetrieveHandler(retriever)(context.Background(), nil, RetrieveCodeInput{})
	assert.Error(t, err)
}

func TestAnalyzeHandler(t *testing.T) {
	analyst := &fakeAnalyst{}
	_, out, err := makeAnalyzeHandler(analyst)(context.Background(), nil, AnalyzeErrorInput{
		ErrorLog: "FATAL NullPointerException at com.example.UserService:123",
	})
	require.NoError(t, err)

	assert.Equal(t, "FATAL NullPointerException at com.example.UserService:123", analyst.last.Query)
	require.Len(t, analyst.last.Logs, 1)
	assert.Equal(t, "session-1", out.SessionID)
	assert.Equal(t, "missing null check", out.RootCause)
	assert.Equal(t, "error_analysis", out.Strategy)
	assert.Len(t, out.CorrelatedLogs, 1)
}

func TestAnalyzeHandler_Error(t *testing.T) {
	_, _, err := makeAnalyzeHandler(&fakeAnalyst{err: rca.ErrEmptyQuery})(context.Background(), nil, AnalyzeErrorInput{})
	assert.ErrorIs(t, err, rca.ErrEmptyQuery)
}

func TestFetchHandler(t *testing.T) {
	handler := makeFetchHandler(newFakeIndex())

	_, out, err := handler(context.Background(), nil, FetchFragmentInput{ID: getUser.ID})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, getUser.Document, out.Fragment.Code)

	_, out, err = handler(context.Background(), nil, FetchFragmentInput{ID: "missing"})
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Nil(t, out.Fragment)
}

func TestStatusHandler(t *testing.T) {
	_, out, err := makeStatusHandler(newFakeIndex())(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "java_code_analysis", out.Collection)
	assert.Equal(t, 1, out.TotalFragments)
	assert.Equal(t, []string{getUser.ID}, out.SampleIDs)

	_, _, err = makeStatusHandler(&fakeIndex{err: errors.New("down")})(context.Background(), nil, StatusInput{})
	assert.ErrorContains(t, err, "qdrant_error")
}

func TestServer_ToolsOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	server := NewServer(&Config{
		Retriever: &fakeRetriever{},
		Analyst:   &fakeAnalyst{},
		Index:     newFakeIndex(),
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"retrieve_code", "analyze_error", "fetch_fragment", "get_index_status"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "retrieve_code",
		Arguments: map[string]any{"query": "Why does UserService fail?"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out RetrieveCodeOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "error_analysis", out.Strategy)
	require.Len(t, out.Primary, 1)
	assert.Equal(t, getUser.ID, out.Primary[0].ID)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(newFakeIndex(), retrieval.NewSessionStore(0, 0, 0))(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(&fakeIndex{err: errors.New("down")}, nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLandingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retrieve_code")

	rec = httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
