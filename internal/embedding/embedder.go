package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// EmbeddingDimension is the vector dimension for text-embedding-3-small.
	// This matches storage.VectorDimension (1536).
	EmbeddingDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	DefaultBatchSize = 500
)

// ErrEmbedding is returned when the provider is unreachable or returns malformed output.
var ErrEmbedding = errors.New("embedding generation failed")

// Embedder generates embeddings for text using an OpenAI embedding model.
// It batches requests and retries with exponential backoff on rate limit errors.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
	dimension int
}

// NewEmbedder creates a new Embedder with the given client and optional batch size.
// If batchSize is 0, DefaultBatchSize (500) is used. An empty model selects DefaultModel.
func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
		dimension: EmbeddingDimension,
	}
}

// EmbedOne generates the embedding for a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedMany generates embeddings for texts, one vector per input in order.
// All failures are wrapped in ErrEmbedding.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrEmbedding, i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch.
// Retries with exponential backoff on HTTP 429; other errors fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		vectors := make([][]float64, len(resp.Data))
		indexes := make([]int64, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = data.Embedding
			indexes[i] = data.Index
		}

		ordered, err := orderAndValidate(vectors, indexes, len(texts), e.dimension)
		if err != nil {
			return backoff.Permanent(err)
		}
		embeddings = ordered
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// orderAndValidate places each vector at its reported input index and rejects
// responses with missing, duplicate or wrongly sized vectors.
func orderAndValidate(vectors [][]float64, indexes []int64, want, dimension int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("malformed response: got %d embeddings for %d inputs", len(vectors), want)
	}

	out := make([][]float32, want)
	for i, vec := range vectors {
		idx := int(indexes[i])
		if idx < 0 || idx >= want || out[idx] != nil {
			return nil, fmt.Errorf("malformed response: invalid embedding index %d", idx)
		}
		if dimension > 0 && len(vec) != dimension {
			return nil, fmt.Errorf("malformed response: embedding %d has %d dimensions, expected %d", idx, len(vec), dimension)
		}
		out[idx] = toFloat32(vec)
	}
	return out, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
