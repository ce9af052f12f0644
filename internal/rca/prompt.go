package rca

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bull/rca-code-retrieval/internal/retrieval"
	"github.com/bull/rca-code-retrieval/internal/storage"
)

const turnPreviewChars = 80

// StructuredRCA is the machine-readable part of an analysis.
type StructuredRCA struct {
	RootCause         string  `json:"root_cause"`
	ConfidenceScore   float64 `json:"confidence_score"`
	RecommendedAction string  `json:"recommended_action"`
}

type analysisEnvelope struct {
	ConversationalAnalysis string         `json:"conversational_analysis"`
	StructuredRCA          *StructuredRCA `json:"structured_rca"`
}

// BuildPrompt assembles the analysis prompt from conversation, logs and code.
func BuildPrompt(query string, history []retrieval.ConversationTurn, logs []retrieval.LogEntry, fragments []storage.Fragment) string {
	var b strings.Builder

	b.WriteString("You are an expert root cause analysis assistant for Java services. ")
	b.WriteString("Use the conversation, logs and code below to answer the latest query.\n\n")

	b.WriteString("--- CONVERSATION SUMMARY ---\n")
	if len(history) == 0 {
		b.WriteString("No previous conversation history.\n")
	} else {
		for _, turn := range history {
			fmt.Fprintf(&b, "- The %s mentioned: %q\n", turn.Role, preview(turn.Content, turnPreviewChars))
		}
	}

	b.WriteString("\n--- APPLICATION LOGS ---\n")
	if len(logs) == 0 {
		b.WriteString("No logs provided.\n")
	}
	for _, entry := range logs {
		if entry.Timestamp != "" {
			b.WriteString(entry.Timestamp + " ")
		}
		if entry.Level != "" {
			b.WriteString(entry.Level + " ")
		}
		b.WriteString(entry.Text())
		b.WriteString("\n")
	}

	b.WriteString("\n--- RELEVANT CODE CONTEXT ---\n")
	if len(fragments) == 0 {
		b.WriteString("No specific code snippets were found to be relevant.\n")
	}
	for _, f := range fragments {
		fmt.Fprintf(&b, "// %s (%s.%s, lines %d-%d)\n%s\n\n",
			f.Metadata.FilePath, f.Metadata.ClassName, f.Metadata.MethodName,
			f.Metadata.StartLine, f.Metadata.EndLine, f.Document)
	}

	fmt.Fprintf(&b, "\n--- LATEST USER QUERY ---\n%q\n\n", query)

	b.WriteString("--- RESPONSE FORMAT ---\n")
	b.WriteString(`Reply with a JSON object with two keys: "conversational_analysis", a plain explanation `)
	b.WriteString(`answering the query, and "structured_rca", an object with "root_cause", `)
	b.WriteString(`"confidence_score" (0.0 to 1.0) and "recommended_action". `)
	b.WriteString(`Use an empty object for "structured_rca" when the query is not about a failure.` + "\n")

	return b.String()
}

// ParseStructured extracts the structured part of an LLM reply. Replies that
// are not JSON, or carry no root cause, yield nil.
func ParseStructured(reply string) *StructuredRCA {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil
	}

	var env analysisEnvelope
	if err := json.Unmarshal([]byte(reply[start:end+1]), &env); err != nil {
		return nil
	}
	if env.StructuredRCA == nil || env.StructuredRCA.RootCause == "" {
		return nil
	}
	return env.StructuredRCA
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
