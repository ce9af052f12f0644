// Package mcp exposes code retrieval and root cause analysis as MCP tools.
package mcp

// LogInput is one log record passed to a tool.
type LogInput struct {
	Timestamp  string `json:"timestamp,omitempty" jsonschema:"when the record was written"`
	Level      string `json:"level,omitempty" jsonschema:"severity such as ERROR or WARN"`
	Message    string `json:"message" jsonschema:"the log message"`
	StackTrace string `json:"stack_trace,omitempty" jsonschema:"stack trace attached to the record"`
}

// RetrieveCodeInput defines the input parameters for the retrieve_code tool.
type RetrieveCodeInput struct {
	Query     string     `json:"query" jsonschema:"natural language question about the code"`
	SessionID string     `json:"session_id,omitempty" jsonschema:"conversation session for follow-up questions"`
	TopK      int        `json:"top_k,omitempty" jsonschema:"maximum number of primary fragments, default 10"`
	Logs      []LogInput `json:"logs,omitempty" jsonschema:"application logs related to the question"`
}

// CodeFragment is one retrieved method.
type CodeFragment struct {
	ID         string  `json:"id"`
	FilePath   string  `json:"file_path"`
	ClassName  string  `json:"class_name"`
	MethodName string  `json:"method_name"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Weight     float64 `json:"weight"`
	Code       string  `json:"code"`
}

// RetrieveCodeOutput contains ranked code for a query.
type RetrieveCodeOutput struct {
	Strategy         string         `json:"strategy"`
	Confidence       float64        `json:"confidence"`
	Primary          []CodeFragment `json:"primary"`
	Supporting       []CodeFragment `json:"supporting"`
	CorrelatedLogs   []LogInput     `json:"correlated_logs,omitempty"`
	CorrelationScore float64        `json:"correlation_score,omitempty"`
	IsFollowup       bool           `json:"is_followup"`
	Message          string         `json:"message,omitempty"`
}

// AnalyzeErrorInput defines the input parameters for the analyze_error tool.
type AnalyzeErrorInput struct {
	Query     string     `json:"query,omitempty" jsonschema:"question about the failure"`
	ErrorLog  string     `json:"error_log,omitempty" jsonschema:"raw error log, used as the query when none is given"`
	SessionID string     `json:"session_id,omitempty" jsonschema:"conversation session; a new one is created when empty"`
	Logs      []LogInput `json:"logs,omitempty" jsonschema:"structured application logs"`
}

// AnalyzeErrorOutput contains the LLM analysis and how it was produced.
type AnalyzeErrorOutput struct {
	SessionID         string     `json:"session_id"`
	Analysis          string     `json:"analysis"`
	RootCause         string     `json:"root_cause,omitempty"`
	RecommendedAction string     `json:"recommended_action,omitempty"`
	RCAConfidence     float64    `json:"rca_confidence,omitempty"`
	Strategy          string     `json:"strategy"`
	CodeChunksUsed    int        `json:"code_chunks_used"`
	CorrelatedLogs    []LogInput `json:"correlated_logs"`
	UsedConversation  bool       `json:"conversation_context_used"`
}

// FetchFragmentInput defines the input parameters for the fetch_fragment tool.
type FetchFragmentInput struct {
	ID string `json:"id" jsonschema:"fragment id in the form path::method::start-end"`
}

// FetchFragmentOutput contains one stored fragment.
type FetchFragmentOutput struct {
	Fragment *CodeFragment `json:"fragment,omitempty"`
	Found    bool          `json:"found"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct{}

// StatusOutput describes the fragment index.
type StatusOutput struct {
	Collection     string   `json:"collection"`
	TotalFragments int      `json:"total_fragments"`
	SampleIDs      []string `json:"sample_ids"`
}
