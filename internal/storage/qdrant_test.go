//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestIndex creates an index on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	index, err := NewQdrantIndex("localhost", 6334, "test_"+uuid.New().String())
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	require.NoError(t, index.EnsureCollection(context.Background()), "Failed to ensure collection")
	t.Cleanup(func() {
		_ = index.client.DeleteCollection(context.Background(), index.collection)
		index.Close()
	})

	return index
}

func testEmbedding(value float32) []float32 {
	embedding := make([]float32, VectorDimension)
	for i := range embedding {
		embedding[i] = value
	}
	embedding[0] = 1
	return embedding
}

func TestQdrantIndex_UpsertAndNearest(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	fragment := Fragment{
		ID:       "src/UserService.java::findUser::10-20",
		Document: "public User findUser(long id) { return repo.find(id); }",
		Metadata: FragmentMetadata{
			FilePath:   "src/UserService.java",
			ClassName:  "UserService",
			MethodName: "findUser",
			StartLine:  10,
			EndLine:    20,
		},
	}

	err := index.Upsert(ctx, []EmbeddedFragment{{Fragment: fragment, Embedding: testEmbedding(0.1)}})
	require.NoError(t, err)

	results, err := index.Nearest(ctx, testEmbedding(0.1), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fragment, results[0])
}

func TestQdrantIndex_UpsertIdempotent(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	f := EmbeddedFragment{
		Fragment:  Fragment{ID: "a::b::1-2", Document: "v1"},
		Embedding: testEmbedding(0.2),
	}
	require.NoError(t, index.Upsert(ctx, []EmbeddedFragment{f}))
	f.Fragment.Document = "v2"
	require.NoError(t, index.Upsert(ctx, []EmbeddedFragment{f}))

	info, err := index.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointsCount)

	got, err := index.GetFragment(ctx, "a::b::1-2")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Document)
}

func TestQdrantIndex_Filter(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, []EmbeddedFragment{
		{Fragment: Fragment{ID: "1", Metadata: FragmentMetadata{FilePath: "src/UserService.java", ClassName: "UserService", MethodName: "save"}}, Embedding: testEmbedding(0.1)},
		{Fragment: Fragment{ID: "2", Metadata: FragmentMetadata{FilePath: "src/OrderService.java", ClassName: "OrderService", MethodName: "save"}}, Embedding: testEmbedding(0.2)},
	}))

	results, err := index.Filter(ctx, MetadataFilter{ClassName: "UserService"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)

	results, err = index.Filter(ctx, MetadataFilter{MethodName: "save"}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQdrantIndex_GetFragmentNotFound(t *testing.T) {
	index := setupTestIndex(t)

	_, err := index.GetFragment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFragmentNotFound)
}

func TestQdrantIndex_DimensionMismatch(t *testing.T) {
	index := setupTestIndex(t)

	_, err := index.Nearest(context.Background(), []float32{1, 2, 3}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
