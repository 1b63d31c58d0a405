// Package vector provides the vector index gateway backed by qdrant.
// Points are keyed by a deterministic hash of the owning logical id and the
// chunk index, which makes upserts idempotent: replaying an indexing run for
// an entity converges to the same point set.
package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
)

// Filter re-exports the qdrant filter so callers build search filters
// without importing the client package directly.
type Filter = qdrant.Filter

// PointsAPI is the subset of the qdrant client the gateway uses.
// Kept as an interface for dependency injection and testing.
type PointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Chunk is one unit of indexed text with its payload context.
type Chunk struct {
	Text       string
	Index      int
	Filename   string
	URL        string
	SourceType string
	Metadata   map[string]interface{}
}

// Hit is one search result.
type Hit struct {
	ID      uint64
	Score   float32
	Payload map[string]interface{}
}

// Index is the vector index gateway.
type Index struct {
	client     PointsAPI
	collection string
	dimension  int
}

// NewIndex connects to qdrant over gRPC.
func NewIndex(cfg config.VectorConfig) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &Index{client: client, collection: cfg.Collection, dimension: cfg.Dimension}, nil
}

// NewIndexWithClient wires an explicit client, used by tests.
func NewIndexWithClient(client PointsAPI, collection string, dimension int) *Index {
	return &Index{client: client, collection: collection, dimension: dimension}
}

// Close releases the underlying gRPC connection.
func (i *Index) Close() error {
	return i.client.Close()
}

// EnsureCollection creates the collection on first connect with the
// configured dimension and cosine distance. Idempotent.
func (i *Index) EnsureCollection(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", i.collection, err)
	}
	if exists {
		return nil
	}

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(i.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", i.collection, err)
	}

	common.Logger.Info("created vector collection ", i.collection)
	return nil
}

// Upsert writes one point per chunk for the given logical entity. idField is
// "document_id" for file-backed content and "source_id" for URL/text
// content; the field value always lands in the payload so retrieval filters
// need only one OR-match rule.
func (i *Index) Upsert(ctx context.Context, idField, logicalID, ownerID string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d != %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for n, chunk := range chunks {
		payload := map[string]interface{}{
			idField:       logicalID,
			"chunk_index": int64(chunk.Index),
			"chunk_text":  chunk.Text,
			"owner_id":    ownerID,
		}
		if chunk.Filename != "" {
			payload["filename"] = chunk.Filename
		}
		if chunk.URL != "" {
			payload["url"] = chunk.URL
		}
		if chunk.SourceType != "" {
			payload["source_type"] = chunk.SourceType
		}
		if len(chunk.Metadata) > 0 {
			payload["metadata"] = chunk.Metadata
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(PointID(logicalID, chunk.Index)),
			Vectors: qdrant.NewVectors(embeddings[n]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points for %s: %w", len(points), logicalID, err)
	}
	return nil
}

// DeleteByLogicalID removes every point whose payload matches the id under
// either key. Covers both addressing schemes in one call.
func (i *Index) DeleteByLogicalID(ctx context.Context, logicalID string) error {
	filter := &qdrant.Filter{
		Should: []*qdrant.Condition{
			qdrant.NewMatch("document_id", logicalID),
			qdrant.NewMatch("source_id", logicalID),
		},
	}

	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", logicalID, err)
	}
	return nil
}

// SelectionFilter builds the OR filter over a caller-supplied id set,
// matching each id against both document_id and source_id.
func SelectionFilter(selectedIDs []string) *qdrant.Filter {
	if len(selectedIDs) == 0 {
		return nil
	}
	should := make([]*qdrant.Condition, 0, 2*len(selectedIDs))
	for _, id := range selectedIDs {
		should = append(should,
			qdrant.NewMatch("document_id", id),
			qdrant.NewMatch("source_id", id),
		)
	}
	return &qdrant.Filter{Should: should}
}

// OwnedSelectionFilter is a selection filter restricted to one owner's
// points. Selected ids are caller input, so the owner constraint is what
// keeps a guessed id from reading someone else's content.
func OwnedSelectionFilter(ownerID string, selectedIDs []string) *qdrant.Filter {
	filter := SelectionFilter(selectedIDs)
	if filter == nil {
		return OwnerFilter(ownerID)
	}
	filter.Must = []*qdrant.Condition{qdrant.NewMatch("owner_id", ownerID)}
	return filter
}

// OwnerFilter narrows a search to one owner's points.
func OwnerFilter(ownerID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("owner_id", ownerID)},
	}
}

// Search runs a filtered similarity query.
func (i *Index) Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float32, filter *qdrant.Filter) ([]Hit, error) {
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(scoreThreshold),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hit := Hit{Score: p.GetScore(), Payload: decodePayload(p.GetPayload())}
		if id := p.GetId(); id != nil {
			hit.ID = id.GetNum()
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// CountByLogicalID reports how many points exist for an entity.
func (i *Index) CountByLogicalID(ctx context.Context, logicalID string) (uint64, error) {
	filter := &qdrant.Filter{
		Should: []*qdrant.Condition{
			qdrant.NewMatch("document_id", logicalID),
			qdrant.NewMatch("source_id", logicalID),
		},
	}
	count, err := i.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: i.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points for %s: %w", logicalID, err)
	}
	return count, nil
}

// Ping verifies the collection is reachable.
func (i *Index) Ping(ctx context.Context) error {
	_, err := i.client.CollectionExists(ctx, i.collection)
	return err
}

func decodePayload(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return decodePayload(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			out = append(out, decodeValue(item))
		}
		return out
	default:
		return nil
	}
}
