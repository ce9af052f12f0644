package retrieval

import (
	"regexp"
	"strings"
)

// strategyPatterns are matched against the lower-cased query. A strategy's
// score is the total number of matches across its patterns.
// Conceptual has no patterns; it is the fallback when nothing scores.
var strategyPatterns = map[Strategy][]*regexp.Regexp{
	SpecificClass: {
		regexp.MustCompile(`\b[a-z][a-z0-9_]*(?:service|controller|repository)\b`),
		regexp.MustCompile(`\bclass\s+[a-z][a-z0-9_]*\b`),
	},
	SpecificMethod: {
		regexp.MustCompile(`\b[a-z][a-z0-9_]*\(\)`),
		regexp.MustCompile(`\bmethod\s+[a-z][a-z0-9_]*\b`),
		regexp.MustCompile(`\bfunction\s+[a-z][a-z0-9_]*\b`),
	},
	ErrorAnalysis: {
		regexp.MustCompile(`\b[a-z0-9_]*(?:exception|error)s?\b`),
		regexp.MustCompile(`\b(?:null|timeout|connection|failed|failure|throws?|thrown|crash(?:es|ed)?)\b`),
		regexp.MustCompile(`\b(?:stack trace|stacktrace)\b`),
		regexp.MustCompile(`\b(?:why.*fail|what.*wrong|cause.*error)\b`),
	},
	LogAnalysis: {
		regexp.MustCompile(`\b(?:log|logs|logging|trace|debug)\b`),
		regexp.MustCompile(`\b(?:show.*log|find.*log|log.*show)\b`),
	},
	FlowUnderstanding: {
		regexp.MustCompile(`\b(?:how.*work|what.*do|explain.*flow)\b`),
		regexp.MustCompile(`\b(?:process|workflow|sequence|flow)\b`),
	},
}

var (
	classNamePattern     = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]*(?:Service|Controller|Repository)\b`)
	methodCallPattern    = regexp.MustCompile(`\b[a-z][a-zA-Z0-9_]*\(\)`)
	errorTermPattern     = regexp.MustCompile(`\b[a-z0-9_]*(?:exception|error)\b|\b(?:null|timeout|connection|failed)\b`)
	technicalTermPattern = regexp.MustCompile(`\b(?:database|api|rest|http|sql|json)\b`)
)

// Classifier maps a query to a retrieval strategy. It is stateless and safe
// for concurrent use.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify scores every strategy against the query and picks the highest.
// Ties go to the strategy declared first; a query matching nothing is Conceptual.
func (c *Classifier) Classify(query string) Classification {
	lower := strings.ToLower(query)

	best := Conceptual
	bestScore := 0
	for _, s := range strategies {
		score := 0
		for _, p := range strategyPatterns[s] {
			score += len(p.FindAllStringIndex(lower, -1))
		}
		if score > bestScore {
			best = s
			bestScore = score
		}
	}

	words := len(strings.Fields(query))
	confidence := float64(bestScore) / float64(words+1)
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		Strategy:   best,
		Confidence: confidence,
		Entities:   extractEntities(query, lower),
	}
}

func extractEntities(query, lower string) Entities {
	return Entities{
		ClassNames:     uniqueMatches(classNamePattern, query),
		MethodNames:    uniqueMatches(methodCallPattern, query),
		ErrorTerms:     uniqueMatches(errorTermPattern, lower),
		TechnicalTerms: uniqueMatches(technicalTermPattern, lower),
	}
}

// uniqueMatches returns all matches of p in s without duplicates, in first-seen order.
func uniqueMatches(p *regexp.Regexp, s string) []string {
	matches := p.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
