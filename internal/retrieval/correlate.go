package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

// LogEntry is one application log record supplied with a query.
type LogEntry struct {
	Timestamp  string `json:"timestamp,omitempty"`
	Level      string `json:"level,omitempty"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// Text returns the message and stack trace joined for matching.
func (l LogEntry) Text() string {
	if l.StackTrace == "" {
		return l.Message
	}
	return l.Message + "\n" + l.StackTrace
}

// Correlation links log entries to retrieved code.
type Correlation struct {
	// Matched holds the entries that mention an identifier from the code, in input order.
	Matched []LogEntry `json:"correlated_logs"`
	// Identifiers are the class and method names searched for.
	Identifiers []string `json:"identifiers"`
	// Score is len(Matched) divided by the number of entries.
	Score float64 `json:"correlation_score"`
}

var (
	declaredTypePattern = regexp.MustCompile(`\b(?:class|interface|enum|record)\s+([A-Z][A-Za-z0-9_]*)`)
	methodNamePattern   = regexp.MustCompile(`\b([a-z][A-Za-z0-9_]*)\s*\(`)
)

// javaKeywords are call-like keywords that the method pattern would otherwise pick up.
var javaKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "return": {}, "new": {},
	"synchronized": {}, "super": {}, "this": {}, "throw": {}, "try": {}, "assert": {},
}

// LogCorrelator matches log entries against identifiers found in code fragments.
type LogCorrelator struct{}

// NewLogCorrelator creates a LogCorrelator.
func NewLogCorrelator() *LogCorrelator {
	return &LogCorrelator{}
}

// Correlate returns the log entries whose message or stack trace contains a
// class or method name declared in any fragment. With no logs the score is 0.
func (c *LogCorrelator) Correlate(fragments []storage.Fragment, logs []LogEntry) Correlation {
	identifiers := codeIdentifiers(fragments)
	result := Correlation{Identifiers: identifiers}
	if len(logs) == 0 {
		return result
	}

	for _, entry := range logs {
		text := entry.Text()
		for _, id := range identifiers {
			if strings.Contains(text, id) {
				result.Matched = append(result.Matched, entry)
				break
			}
		}
	}
	result.Score = float64(len(result.Matched)) / float64(len(logs))
	correlationMatchesTotal.Add(float64(len(result.Matched)))
	return result
}

// codeIdentifiers collects declared type names and invoked or declared method
// names from fragment text, sorted and deduplicated.
func codeIdentifiers(fragments []storage.Fragment) []string {
	set := make(map[string]struct{})
	for _, f := range fragments {
		for _, m := range declaredTypePattern.FindAllStringSubmatch(f.Document, -1) {
			set[m[1]] = struct{}{}
		}
		for _, m := range methodNamePattern.FindAllStringSubmatch(f.Document, -1) {
			if _, kw := javaKeywords[m[1]]; kw {
				continue
			}
			set[m[1]] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var logKeywordPattern = regexp.MustCompile(`[a-zA-Z0-9_]*Exception|FATAL|ERROR|timeout|[A-Z][a-zA-Z]+Service`)

// LogKeywords extracts exception names, severity markers and service names
// from log entries, sorted and deduplicated.
func LogKeywords(logs []LogEntry) []string {
	set := make(map[string]struct{})
	for _, entry := range logs {
		for _, m := range logKeywordPattern.FindAllString(entry.Text(), -1) {
			set[m] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// logText concatenates all entries for the raw log pass.
func logText(logs []LogEntry) string {
	parts := make([]string, 0, len(logs))
	for _, entry := range logs {
		if t := strings.TrimSpace(entry.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
