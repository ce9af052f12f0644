package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Retriever Retriever
	Analyst   Analyst
	Index     IndexInspector
	Version   string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rca-code-retrieval",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_code",
		Description: "Find the Java methods most relevant to a question, optionally using application logs and the session's conversation. Returns ranked code fragments.",
	}, makeRetrieveHandler(cfg.Retriever))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_error",
		Description: "Run a root cause analysis for an error: retrieves related code, correlates logs and asks the LLM for an explanation. Follow-up questions reuse the session.",
	}, makeAnalyzeHandler(cfg.Analyst))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_fragment",
		Description: "Retrieve one indexed code fragment by id.",
	}, makeFetchHandler(cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report the fragment collection name, the number of indexed fragments and a few sample ids.",
	}, makeStatusHandler(cfg.Index))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
