package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of query embeddings kept by CachedEmbedder.
const DefaultCacheSize = 2048

// TextEmbedder is the single-text half of Embedder.
type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder memoizes EmbedOne results keyed by content hash.
// Retrieval embeds the same theme and keyword queries repeatedly within a session.
type CachedEmbedder struct {
	inner TextEmbedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of size entries.
// A non-positive size selects DefaultCacheSize.
func NewCachedEmbedder(inner TextEmbedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &CachedEmbedder{inner: inner, cache: cache}
}

// EmbedOne returns a copy of the cached vector or embeds and caches text.
// Errors are not cached.
func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return append([]float32(nil), vec...), nil
	}

	vec, err := c.inner.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]float32(nil), vec...))
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
