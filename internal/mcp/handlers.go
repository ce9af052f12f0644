package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rca-code-retrieval/internal/rca"
	"github.com/bull/rca-code-retrieval/internal/retrieval"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

const (
	defaultTopK     = 10
	maxTopK         = 50
	statusSampleIDs = 5
)

// Retriever runs hybrid retrieval. Implemented by retrieval.Engine.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query, topK int) *retrieval.RetrievalResult
}

// Analyst answers analysis requests. Implemented by rca.Service.
type Analyst interface {
	Analyze(ctx context.Context, req rca.Request) (*rca.Response, error)
}

// IndexInspector reads index contents. Implemented by storage.QdrantIndex.
type IndexInspector interface {
	Collection() string
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
	Sample(ctx context.Context, limit int) ([]storage.Fragment, error)
	GetFragment(ctx context.Context, id string) (*storage.Fragment, error)
}

// makeRetrieveHandler creates the retrieve_code tool handler.
func makeRetrieveHandler(retriever Retriever) func(
	context.Context, *mcp.CallToolRequest, RetrieveCodeInput,
) (*mcp.CallToolResult, RetrieveCodeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetrieveCodeInput) (
		*mcp.CallToolResult, RetrieveCodeOutput, error,
	) {
		if input.Query == "" {
			return nil, RetrieveCodeOutput{}, errors.New("query is required")
		}
		topK := input.TopK
		if topK <= 0 {
			topK = defaultTopK
		}
		if topK > maxTopK {
			topK = maxTopK
		}

		result := retriever.Retrieve(ctx, retrieval.Query{
			Text:      input.Query,
			SessionID: input.SessionID,
			Logs:      toLogEntries(input.Logs),
		}, topK)

		out := RetrieveCodeOutput{
			Strategy:   result.Strategy.String(),
			Confidence: result.Confidence,
			Primary:    toCodeFragments(result.Primary),
			Supporting: toCodeFragments(result.Supporting),
			IsFollowup: result.IsFollowup,
		}
		if result.Correlation != nil {
			out.CorrelatedLogs = toLogInputs(result.Correlation.Matched)
			out.CorrelationScore = result.Correlation.Score
		}
		if len(out.Primary) == 0 && len(out.Supporting) == 0 {
			out.Message = "No matching code found. Check that the project has been indexed."
		}
		return nil, out, nil
	}
}

// makeAnalyzeHandler creates the analyze_error tool handler.
func makeAnalyzeHandler(analyst Analyst) func(
	context.Context, *mcp.CallToolRequest, AnalyzeErrorInput,
) (*mcp.CallToolResult, AnalyzeErrorOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeErrorInput) (
		*mcp.CallToolResult, AnalyzeErrorOutput, error,
	) {
		request := rca.Request{
			Query:     input.Query,
			SessionID: input.SessionID,
			Logs:      toLogEntries(input.Logs),
		}
		if input.ErrorLog != "" {
			request.Logs = append(request.Logs, retrieval.LogEntry{Message: input.ErrorLog})
			if request.Query == "" {
				request.Query = input.ErrorLog
			}
		}

		resp, err := analyst.Analyze(ctx, request)
		if err != nil {
			return nil, AnalyzeErrorOutput{}, fmt.Errorf("analysis failed: %w", err)
		}

		out := AnalyzeErrorOutput{
			SessionID:        resp.SessionID,
			Analysis:         resp.Analysis,
			Strategy:         resp.SearchMetadata.Strategy.String(),
			CodeChunksUsed:   resp.CodeChunksUsed,
			CorrelatedLogs:   toLogInputs(resp.LogCorrelation),
			UsedConversation: resp.ConversationContextUsed,
		}
		if resp.Structured != nil {
			out.RootCause = resp.Structured.RootCause
			out.RecommendedAction = resp.Structured.RecommendedAction
			out.RCAConfidence = resp.Structured.ConfidenceScore
		}
		return nil, out, nil
	}
}

// makeFetchHandler creates the fetch_fragment tool handler.
func makeFetchHandler(index IndexInspector) func(
	context.Context, *mcp.CallToolRequest, FetchFragmentInput,
) (*mcp.CallToolResult, FetchFragmentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FetchFragmentInput) (
		*mcp.CallToolResult, FetchFragmentOutput, error,
	) {
		fragment, err := index.GetFragment(ctx, input.ID)
		if err != nil {
			if errors.Is(err, storage.ErrFragmentNotFound) {
				return nil, FetchFragmentOutput{Found: false}, nil
			}
			return nil, FetchFragmentOutput{}, fmt.Errorf("failed to fetch fragment: %w", err)
		}
		cf := toCodeFragment(retrieval.ScoredFragment{Fragment: *fragment})
		return nil, FetchFragmentOutput{Fragment: &cf, Found: true}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(index IndexInspector) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		info, err := index.GetCollectionInfo(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to get collection info: %w", err)
		}

		samples, err := index.Sample(ctx, statusSampleIDs)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to sample fragments: %w", err)
		}
		ids := make([]string, len(samples))
		for i, f := range samples {
			ids[i] = f.ID
		}

		return nil, StatusOutput{
			Collection:     index.Collection(),
			TotalFragments: int(info.PointsCount),
			SampleIDs:      ids,
		}, nil
	}
}

func toLogEntries(logs []LogInput) []retrieval.LogEntry {
	if len(logs) == 0 {
		return nil
	}
	out := make([]retrieval.LogEntry, len(logs))
	for i, l := range logs {
		out[i] = retrieval.LogEntry{Timestamp: l.Timestamp, Level: l.Level, Message: l.Message, StackTrace: l.StackTrace}
	}
	return out
}

func toLogInputs(logs []retrieval.LogEntry) []LogInput {
	out := make([]LogInput, len(logs))
	for i, l := range logs {
		out[i] = LogInput{Timestamp: l.Timestamp, Level: l.Level, Message: l.Message, StackTrace: l.StackTrace}
	}
	return out
}

func toCodeFragments(scored []retrieval.ScoredFragment) []CodeFragment {
	out := make([]CodeFragment, len(scored))
	for i, sf := range scored {
		out[i] = toCodeFragment(sf)
	}
	return out
}

func toCodeFragment(sf retrieval.ScoredFragment) CodeFragment {
	m := sf.Fragment.Metadata
	return CodeFragment{
		ID:         sf.Fragment.ID,
		FilePath:   m.FilePath,
		ClassName:  m.ClassName,
		MethodName: m.MethodName,
		StartLine:  m.StartLine,
		EndLine:    m.EndLine,
		Weight:     sf.Weight,
		Code:       sf.Fragment.Document,
	}
}
