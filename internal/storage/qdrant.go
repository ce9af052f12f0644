package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// vectorName is the named vector holding fragment embeddings.
const vectorName = "code"

// upsertBatchSize caps the number of points sent per upsert call.
const upsertBatchSize = 100

// QdrantIndex wraps the Qdrant client with connection management and health checks.
// It stores one point per code fragment.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	host       string
	port       int
}

// NewQdrantIndex creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantIndex(host string, port int, collection string) (*QdrantIndex, error) {
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	index := &QdrantIndex{
		client:     client,
		collection: collection,
		host:       host,
		port:       port,
	}

	if err := index.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return index, nil
}

// newBackOff returns the retry policy shared by all Qdrant calls.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, newBackOff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// Collection returns the name of the backing collection.
func (s *QdrantIndex) Collection() string {
	return s.collection
}

// EnsureCollection creates the fragment collection with cosine-distance vectors
// and payload indexes if it does not exist yet. Idempotent.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes indexes every field used by Filter.
// file_path gets a full-text index so class names can match by containment.
func (s *QdrantIndex) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		"fragment_id": qdrant.FieldType_FieldTypeKeyword,
		"class_name":  qdrant.FieldType_FieldTypeKeyword,
		"method_name": qdrant.FieldType_FieldTypeKeyword,
		"file_path":   qdrant.FieldType_FieldTypeText,
	}

	for field, fieldType := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// ClearCollection drops and recreates the collection.
func (s *QdrantIndex) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PointID derives the Qdrant point id for a fragment id.
// The mapping is deterministic so re-indexing a fragment overwrites its point.
func PointID(fragmentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fragmentID)).String()
}

func (s *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, newBackOff(ctx))
}

// Upsert stores fragments with their embeddings, batched in groups of 100.
// Upserting the same fragment id twice leaves a single point.
func (s *QdrantIndex) Upsert(ctx context.Context, fragments []EmbeddedFragment) error {
	if len(fragments) == 0 {
		return nil
	}

	for i, f := range fragments {
		if len(f.Embedding) != VectorDimension {
			return fmt.Errorf("%w: fragment %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(f.Embedding), VectorDimension)
		}
	}

	for i := 0; i < len(fragments); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(fragments))
		batch := fragments[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, f := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(PointID(f.Fragment.ID)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(f.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"fragment_id": f.Fragment.ID,
					"document":    f.Fragment.Document,
					"file_path":   f.Fragment.Metadata.FilePath,
					"class_name":  f.Fragment.Metadata.ClassName,
					"method_name": f.Fragment.Metadata.MethodName,
					"start_line":  f.Fragment.Metadata.StartLine,
					"end_line":    f.Fragment.Metadata.EndLine,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Nearest returns up to limit fragments ordered by cosine similarity to embedding.
func (s *QdrantIndex) Nearest(ctx context.Context, embedding []float32, limit int) ([]Fragment, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &using,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, result := range results {
		fragments = append(fragments, fragmentFromPayload(result.Payload))
	}

	return fragments, nil
}

// Filter returns up to limit fragments whose metadata matches filter exactly.
// No vector search is involved; results come back in scroll order.
func (s *QdrantIndex) Filter(ctx context.Context, filter MetadataFilter, limit int) ([]Fragment, error) {
	if filter.IsEmpty() || limit <= 0 {
		return nil, nil
	}

	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter fragments: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, result := range results {
		fragments = append(fragments, fragmentFromPayload(result.Payload))
	}

	return fragments, nil
}

// toQdrantFilter mirrors MetadataFilter.Matches: class name matches either the
// class_name keyword or a file_path containing it, method name must be equal.
func toQdrantFilter(filter MetadataFilter) *qdrant.Filter {
	f := &qdrant.Filter{}
	if filter.ClassName != "" {
		f.Should = []*qdrant.Condition{
			qdrant.NewMatch("class_name", filter.ClassName),
			qdrant.NewMatchText("file_path", filter.ClassName),
		}
	}
	if filter.MethodName != "" {
		f.Must = append(f.Must, qdrant.NewMatch("method_name", filter.MethodName))
	}
	return f
}

// GetFragment retrieves a single fragment by its fragment id.
// Returns ErrFragmentNotFound if no point exists for it.
func (s *QdrantIndex) GetFragment(ctx context.Context, id string) (*Fragment, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrFragmentNotFound
	}

	fragment := fragmentFromPayload(result[0].Payload)
	return &fragment, nil
}

// Sample returns the first limit fragments in scroll order, for inspection.
func (s *QdrantIndex) Sample(ctx context.Context, limit int) ([]Fragment, error) {
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll fragments: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, result := range results {
		fragments = append(fragments, fragmentFromPayload(result.Payload))
	}
	return fragments, nil
}

// CollectionInfo contains collection statistics.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantIndex) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
	}

	return &CollectionInfo{
		Name:        s.collection,
		PointsCount: info.GetPointsCount(),
	}, nil
}

func fragmentFromPayload(payload map[string]*qdrant.Value) Fragment {
	return Fragment{
		ID:       payload["fragment_id"].GetStringValue(),
		Document: payload["document"].GetStringValue(),
		Metadata: FragmentMetadata{
			FilePath:   payload["file_path"].GetStringValue(),
			ClassName:  payload["class_name"].GetStringValue(),
			MethodName: payload["method_name"].GetStringValue(),
			StartLine:  int(payload["start_line"].GetIntegerValue()),
			EndLine:    int(payload["end_line"].GetIntegerValue()),
		},
	}
}
