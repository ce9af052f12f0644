// Package retrieval implements hybrid code retrieval for root cause analysis:
// query classification, strategy-specific search against a vector index,
// weighted fusion of retrieval passes, conversation context and log correlation.
package retrieval

import (
	"context"
	"fmt"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

// VectorIndex is the read side of the fragment store.
// Implemented by storage.QdrantIndex and storage.MemoryIndex.
type VectorIndex interface {
	Nearest(ctx context.Context, embedding []float32, limit int) ([]storage.Fragment, error)
	Filter(ctx context.Context, filter storage.MetadataFilter, limit int) ([]storage.Fragment, error)
}

// Embedder turns query text into an embedding vector.
// Implemented by embedding.Embedder.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Strategy is the retrieval algorithm chosen for a query.
// Declaration order is the tie-break priority during classification.
type Strategy int

const (
	SpecificClass Strategy = iota
	SpecificMethod
	ErrorAnalysis
	Conceptual
	LogAnalysis
	FlowUnderstanding
)

// strategies lists every Strategy in declaration order.
var strategies = []Strategy{
	SpecificClass,
	SpecificMethod,
	ErrorAnalysis,
	Conceptual,
	LogAnalysis,
	FlowUnderstanding,
}

var strategyNames = map[Strategy]string{
	SpecificClass:     "specific_class",
	SpecificMethod:    "specific_method",
	ErrorAnalysis:     "error_analysis",
	Conceptual:        "conceptual",
	LogAnalysis:       "log_analysis",
	FlowUnderstanding: "flow_understanding",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// MarshalText encodes the strategy by name so JSON output is readable.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Entities holds the identifiers extracted from a query, deduplicated in
// first-seen order.
type Entities struct {
	ClassNames     []string `json:"class_names"`
	MethodNames    []string `json:"method_names"`
	ErrorTerms     []string `json:"error_terms"`
	TechnicalTerms []string `json:"technical_terms"`
}

// Classification is the outcome of classifying one query. Never mutated.
type Classification struct {
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
}

// Query is one retrieval request.
type Query struct {
	Text      string
	SessionID string
	Logs      []LogEntry
}

// ScoredFragment is a fragment with the weight accumulated across retrieval passes.
type ScoredFragment struct {
	Fragment storage.Fragment `json:"fragment"`
	Weight   float64          `json:"weight"`
}

// RetrievalResult is the ranked output of one retrieval. Ownership passes to the caller.
type RetrievalResult struct {
	Primary        []ScoredFragment `json:"primary"`
	Supporting     []ScoredFragment `json:"supporting"`
	Strategy       Strategy         `json:"strategy"`
	Confidence     float64          `json:"confidence"`
	Classification Classification   `json:"classification"`
	Correlation    *Correlation     `json:"log_correlation,omitempty"`
	LogKeywords    []string         `json:"log_keywords,omitempty"`
	Themes         []string         `json:"conversation_themes,omitempty"`
	IsFollowup     bool             `json:"is_followup"`
	FailedPasses   []string         `json:"failed_passes,omitempty"`
}

// Fragments returns the primary then supporting fragments without weights.
func (r *RetrievalResult) Fragments() []storage.Fragment {
	out := make([]storage.Fragment, 0, len(r.Primary)+len(r.Supporting))
	for _, sf := range r.Primary {
		out = append(out, sf.Fragment)
	}
	for _, sf := range r.Supporting {
		out = append(out, sf.Fragment)
	}
	return out
}
