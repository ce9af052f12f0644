package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

var errUnavailable = errors.New("backend unavailable")

// vocabulary defines the dimensions of the keyword embedder.
var vocabulary = []string{"user", "order", "exception", "null", "payment"}

// keywordEmbedder produces deterministic vectors from word counts.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls []string
}

func (k *keywordEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.calls = append(k.calls, text)
	k.mu.Unlock()
	return keywordVector(text), nil
}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(vocabulary))
	for i, word := range vocabulary {
		v[i] = float32(strings.Count(lower, word))
	}
	return v
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return nil, errUnavailable
}

// selectiveEmbedder fails only for texts containing failOn.
type selectiveEmbedder struct {
	failOn string
}

func (s selectiveEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, s.failOn) {
		return nil, errUnavailable
	}
	return keywordVector(text), nil
}

type failingIndex struct{}

func (failingIndex) Nearest(ctx context.Context, embedding []float32, limit int) ([]storage.Fragment, error) {
	return nil, errUnavailable
}

func (failingIndex) Filter(ctx context.Context, filter storage.MetadataFilter, limit int) ([]storage.Fragment, error) {
	return nil, errUnavailable
}

func fragment(id, class, method, doc string) storage.Fragment {
	return storage.Fragment{
		ID:       id,
		Document: doc,
		Metadata: storage.FragmentMetadata{
			FilePath:   "src/main/java/com/example/" + class + ".java",
			ClassName:  class,
			MethodName: method,
			StartLine:  1,
			EndLine:    10,
		},
	}
}

var (
	getUserFragment = fragment("UserService.java::getUser::10-20", "UserService", "getUser",
		`public User getUser(long id) { User u = repo.find(id); if (u == null) throw new NullPointerException("user missing"); return u; }`)
	placeOrderFragment = fragment("OrderService.java::placeOrder::5-15", "OrderService", "placeOrder",
		`public Order placeOrder(Order order) { return orders.save(order); }`)
	chargeFragment = fragment("PaymentService.java::charge::1-9", "PaymentService", "charge",
		`public void charge(Payment payment) { gateway.charge(payment); }`)
)

// newTestIndex loads fragments into a MemoryIndex using keywordVector embeddings.
func newTestIndex(t *testing.T, fragments ...storage.Fragment) *storage.MemoryIndex {
	t.Helper()
	index := storage.NewMemoryIndex()
	embedded := make([]storage.EmbeddedFragment, len(fragments))
	for i, f := range fragments {
		embedded[i] = storage.EmbeddedFragment{Fragment: f, Embedding: keywordVector(f.Document)}
	}
	require.NoError(t, index.Upsert(context.Background(), embedded))
	return index
}

func ids(fragments []storage.Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.ID
	}
	return out
}

func scoredIDs(scored []ScoredFragment) []string {
	out := make([]string, len(scored))
	for i, sf := range scored {
		out[i] = sf.Fragment.ID
	}
	return out
}
