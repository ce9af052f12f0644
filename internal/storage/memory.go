package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process vector index with the same contract as QdrantIndex.
// Used for tests and for running without a Qdrant server.
type MemoryIndex struct {
	mu        sync.RWMutex
	fragments map[string]EmbeddedFragment // fragment id -> fragment
	order     []string                    // insertion order of ids
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		fragments: make(map[string]EmbeddedFragment),
	}
}

// Upsert stores fragments, replacing any existing entry with the same id.
func (m *MemoryIndex) Upsert(ctx context.Context, fragments []EmbeddedFragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range fragments {
		if f.Fragment.ID == "" {
			return fmt.Errorf("fragment %d has empty id", i)
		}
		if _, exists := m.fragments[f.Fragment.ID]; !exists {
			m.order = append(m.order, f.Fragment.ID)
		}
		m.fragments[f.Fragment.ID] = f
	}
	return nil
}

// Nearest returns up to limit fragments ordered by cosine similarity.
// Equal scores keep insertion order.
func (m *MemoryIndex) Nearest(ctx context.Context, embedding []float32, limit int) ([]Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}

	type scored struct {
		fragment Fragment
		score    float64
	}

	results := make([]scored, 0, len(m.order))
	for _, id := range m.order {
		f := m.fragments[id]
		if len(f.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: query has %d dimensions, fragment %s has %d",
				ErrDimensionMismatch, len(embedding), id, len(f.Embedding))
		}
		results = append(results, scored{fragment: f.Fragment, score: cosineSimilarity(embedding, f.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	fragments := make([]Fragment, len(results))
	for i, r := range results {
		fragments[i] = r.fragment
	}
	return fragments, nil
}

// Filter returns up to limit fragments matching filter, in insertion order.
func (m *MemoryIndex) Filter(ctx context.Context, filter MetadataFilter, limit int) ([]Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fragments []Fragment
	for _, id := range m.order {
		if len(fragments) >= limit {
			break
		}
		f := m.fragments[id].Fragment
		if filter.Matches(f.Metadata) {
			fragments = append(fragments, f)
		}
	}
	return fragments, nil
}

// Len returns the number of stored fragments.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fragments)
}

// cosineSimilarity returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
