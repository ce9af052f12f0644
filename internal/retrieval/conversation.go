package retrieval

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a session.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	DefaultMaxTurns    = 50
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = 24 * time.Hour

	// followupMaxWords is the length at or under which a query with prior
	// history is treated as a follow-up.
	followupMaxWords = 5
)

// SessionStore keeps per-session conversation history. Sessions are created
// on first append, trimmed to the most recent maxTurns turns, evicted least
// recently used beyond maxSessions, and expire after ttl without activity.
// Safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex // serialises read-modify-write of a session's turns
	cache    *expirable.LRU[string, []ConversationTurn]
	maxTurns int
	active   prometheus.Gauge
}

// NewSessionStore creates a store. Non-positive limits take the defaults.
func NewSessionStore(maxTurns, maxSessions int, ttl time.Duration) *SessionStore {
	return newSessionStore(maxTurns, maxSessions, ttl, sessionsActive)
}

// newSessionStore reports live sessions on active. The gauge is raised when a
// session is created and lowered on every LRU eviction or TTL expiry.
func newSessionStore(maxTurns, maxSessions int, ttl time.Duration, active prometheus.Gauge) *SessionStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	onEvict := func(string, []ConversationTurn) { active.Dec() }
	return &SessionStore{
		cache:    expirable.NewLRU[string, []ConversationTurn](maxSessions, onEvict, ttl),
		maxTurns: maxTurns,
		active:   active,
	}
}

// History returns a copy of the session's turns in insertion order.
// Unknown sessions have empty history.
func (s *SessionStore) History(sessionID string) []ConversationTurn {
	if sessionID == "" {
		return nil
	}
	turns, ok := s.cache.Get(sessionID)
	if !ok {
		return nil
	}
	return slices.Clone(turns)
}

// Append adds turns to the session, creating it if needed. Appends to one
// session are serialised and never lost.
func (s *SessionStore) Append(sessionID string, turns ...ConversationTurn) {
	if sessionID == "" || len(turns) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cache.Get(sessionID)
	if !ok {
		// drop an expired entry still waiting for cleanup so it counts as evicted
		s.cache.Remove(sessionID)
		s.active.Inc()
	}
	updated := make([]ConversationTurn, 0, len(existing)+len(turns))
	updated = append(updated, existing...)
	updated = append(updated, turns...)
	if len(updated) > s.maxTurns {
		updated = updated[len(updated)-s.maxTurns:]
	}
	s.cache.Add(sessionID, updated)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// Recent returns at most the last n turns of history.
func Recent(history []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

var (
	themeComponentPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]*(?:Service|Controller)\b`)
	themeExceptionPattern = regexp.MustCompile(`\b[A-Za-z][a-zA-Z0-9_]*Exception\b`)
	themeVocabPattern     = regexp.MustCompile(`(?i)\b(?:database|api|rest|http|json|authentication)\b`)
)

// Themes extracts recurring topics from the history: component names,
// exception identifiers and a fixed technical vocabulary. Vocabulary terms
// are lower-cased. The result is sorted and has no duplicates.
func Themes(history []ConversationTurn) []string {
	set := make(map[string]struct{})
	for _, turn := range history {
		for _, m := range themeComponentPattern.FindAllString(turn.Content, -1) {
			set[m] = struct{}{}
		}
		for _, m := range themeExceptionPattern.FindAllString(turn.Content, -1) {
			set[m] = struct{}{}
		}
		for _, m := range themeVocabPattern.FindAllString(turn.Content, -1) {
			set[strings.ToLower(m)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	themes := make([]string, 0, len(set))
	for t := range set {
		themes = append(themes, t)
	}
	sort.Strings(themes)
	return themes
}

var anaphora = map[string]struct{}{
	"it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "they": {}, "them": {},
	"its": {}, "same": {}, "above": {}, "previous": {}, "also": {}, "again": {}, "else": {}, "more": {},
}

// IsFollowup reports whether query continues the conversation in history:
// there must be prior turns, and the query is either short or refers back
// with an anaphoric word.
func IsFollowup(query string, history []ConversationTurn) bool {
	if len(history) == 0 {
		return false
	}
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return false
	}
	if len(words) <= followupMaxWords {
		return true
	}
	for _, w := range words {
		if _, ok := anaphora[strings.Trim(w, ".,;:!?'\"()")]; ok {
			return true
		}
	}
	return false
}
