package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

func TestExecute_SpecificClassExactMatch(t *testing.T) {
	index := newTestIndex(t, getUserFragment, placeOrderFragment, chargeFragment)
	embedder := &keywordEmbedder{}
	x := NewExecutor(index, embedder, nil)

	c := Classification{Strategy: SpecificClass, Entities: Entities{ClassNames: []string{"OrderService"}}}
	got := x.Execute(context.Background(), "what does OrderService do", c, 10)

	assert.False(t, got.Failed)
	assert.Equal(t, []string{placeOrderFragment.ID}, ids(got.Primary))
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.Empty(t, embedder.calls, "exact match must not embed")
}

func TestExecute_SpecificClassCapsPerEntity(t *testing.T) {
	second := fragment("UserService.java::deleteUser::30-40", "UserService", "deleteUser", "public void deleteUser(long id) {}")
	index := newTestIndex(t, getUserFragment, second, placeOrderFragment)
	x := NewExecutor(index, &keywordEmbedder{}, nil)

	c := Classification{Strategy: SpecificClass, Entities: Entities{ClassNames: []string{"UserService", "OrderService"}}}
	got := x.Execute(context.Background(), "UserService and OrderService", c, 3)

	assert.Equal(t, []string{getUserFragment.ID, placeOrderFragment.ID}, ids(got.Primary))
}

func TestExecute_SpecificClassFallsBackToSemantic(t *testing.T) {
	index := newTestIndex(t, getUserFragment, placeOrderFragment)
	embedder := &keywordEmbedder{}
	x := NewExecutor(index, embedder, nil)

	c := Classification{Strategy: SpecificClass, Entities: Entities{ClassNames: []string{"InvoiceService"}}}
	got := x.Execute(context.Background(), "InvoiceService order totals", c, 10)

	require.NotEmpty(t, got.Primary)
	assert.Equal(t, placeOrderFragment.ID, got.Primary[0].ID)
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
	assert.Equal(t, []string{"InvoiceService order totals"}, embedder.calls)
}

func TestExecute_SpecificMethodStripsParentheses(t *testing.T) {
	index := newTestIndex(t, getUserFragment, chargeFragment)
	x := NewExecutor(index, &keywordEmbedder{}, nil)

	c := Classification{Strategy: SpecificMethod, Entities: Entities{MethodNames: []string{"charge()"}}}
	got := x.Execute(context.Background(), "who calls charge()", c, 10)

	assert.Equal(t, []string{chargeFragment.ID}, ids(got.Primary))
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestExecute_ErrorAnalysisPartitions(t *testing.T) {
	handler := fragment("UserController.java::handle::1-5", "UserController", "handle",
		"try { users.getUser(id); } catch (NullPointerException e) { log.error(\"user null\", e); }")
	index := newTestIndex(t, getUserFragment, handler, placeOrderFragment, chargeFragment)
	embedder := &keywordEmbedder{}
	x := NewExecutor(index, embedder, nil)

	c := Classification{Strategy: ErrorAnalysis}
	got := x.Execute(context.Background(), "user null pointer", c, 4)

	assert.ElementsMatch(t, []string{getUserFragment.ID, handler.ID}, ids(got.Primary))
	assert.ElementsMatch(t, []string{placeOrderFragment.ID, chargeFragment.ID}, ids(got.Supporting))
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	require.Len(t, embedder.calls, 1)
	assert.Contains(t, embedder.calls[0], "error handling")
}

func TestExecute_ErrorAnalysisNullChecksAndTryBlocksArePrimary(t *testing.T) {
	nullCheck := fragment("A.java::a::1-2", "A", "a", "if (user == null) { return defaultUser; }")
	tryFinally := fragment("B.java::b::1-2", "B", "b", "try { repo.save(u); } finally { lock.unlock(); }")
	index := newTestIndex(t, nullCheck, tryFinally)
	x := NewExecutor(index, &keywordEmbedder{}, nil)

	got := x.Execute(context.Background(), "why did saving fail", Classification{Strategy: ErrorAnalysis}, 4)

	assert.ElementsMatch(t, []string{nullCheck.ID, tryFinally.ID}, ids(got.Primary))
	assert.Empty(t, got.Supporting)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
}

func TestExecute_ErrorAnalysisWithoutHandlingCode(t *testing.T) {
	index := newTestIndex(t, placeOrderFragment, chargeFragment)
	x := NewExecutor(index, &keywordEmbedder{}, nil)

	got := x.Execute(context.Background(), "order failed", Classification{Strategy: ErrorAnalysis}, 4)

	assert.Empty(t, got.Primary)
	assert.Len(t, got.Supporting, 2)
	assert.InDelta(t, 0.3, got.Confidence, 1e-9)
}

func TestExecute_DefaultUsesClassificationConfidence(t *testing.T) {
	index := newTestIndex(t, getUserFragment, placeOrderFragment)
	x := NewExecutor(index, &keywordEmbedder{}, nil)

	got := x.Execute(context.Background(), "order handling", Classification{Strategy: Conceptual, Confidence: 0.25}, 1)

	assert.Equal(t, []string{placeOrderFragment.ID}, ids(got.Primary))
	assert.InDelta(t, 0.25, got.Confidence, 1e-9)
}

func TestExecute_FlowAugmentsQuery(t *testing.T) {
	index := newTestIndex(t, placeOrderFragment)
	embedder := &keywordEmbedder{}
	x := NewExecutor(index, embedder, nil)

	x.Execute(context.Background(), "how does ordering work", Classification{Strategy: FlowUnderstanding}, 5)

	require.Len(t, embedder.calls, 1)
	assert.Contains(t, embedder.calls[0], "workflow")
}

func TestExecute_DegradesOnFailure(t *testing.T) {
	cases := []struct {
		name     string
		index    VectorIndex
		embedder Embedder
		c        Classification
	}{
		{"index down on exact", failingIndex{}, &keywordEmbedder{}, Classification{Strategy: SpecificClass, Entities: Entities{ClassNames: []string{"UserService"}}}},
		{"embedder down on error", storage.NewMemoryIndex(), failingEmbedder{}, Classification{Strategy: ErrorAnalysis}},
		{"index down on default", failingIndex{}, &keywordEmbedder{}, Classification{Strategy: Conceptual, Confidence: 0.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewExecutor(tc.index, tc.embedder, nil).Execute(context.Background(), "anything", tc.c, 10)
			assert.True(t, got.Failed)
			assert.Empty(t, got.Primary)
			assert.Empty(t, got.Supporting)
			assert.Zero(t, got.Confidence)
		})
	}
}
