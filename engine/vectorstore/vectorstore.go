// Package vectorstore is the sole owner of all Qdrant operations, generalized
// to the four collections the ingestion pipeline and the retrieval services
// share: RecommendationCard, Video, Product, ProductCard.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Collection names, preserved verbatim for schema-bootstrap tooling.
const (
	RecommendationCard = "recommendation_card"
	Video              = "video"
	Product            = "product"
	ProductCard        = "product_card"
)

// AllCollections is the fixed set every deployment must bootstrap.
var AllCollections = []string{RecommendationCard, Video, Product, ProductCard}

// Record is a single vector to upsert into a collection.
type Record struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Store owns the gRPC connection and dispatches every operation against a
// named collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New dials Qdrant at the given gRPC address.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the named collection if it doesn't already exist.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", collection, err)
	}
	return nil
}

// EnsureAll bootstraps all four collections at the given embedding
// dimensionality; used by cmd/schema-bootstrap.
func (s *Store) EnsureAll(ctx context.Context, dims int) error {
	for _, c := range AllCollections {
		if err := s.EnsureCollection(ctx, c, dims); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCollection deletes a collection outright.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection})
	if err != nil {
		return fmt.Errorf("vectorstore: delete collection %s: %w", collection, err)
	}
	return nil
}

// Upsert stores embedding records into a collection. Called by the
// enrich/embed ingestion stage.
func (s *Store) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points into %s: %w", len(records), collection, err)
	}
	return nil
}

// DeleteBySourceID removes all points in a collection matching a
// content_source_id, used for re-ingestion.
func (s *Store) DeleteBySourceID(ctx context.Context, collection, sourceID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("content_source_id", sourceID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete by content_source_id %s: %w", sourceID, err)
	}
	return nil
}

// Search performs unfiltered k-NN similarity search against a collection.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]SearchResult, error) {
	return s.SearchFiltered(ctx, collection, embedding, topK, nil)
}

// SearchFiltered performs similarity search with optional payload-equality
// filters against a collection.
func (s *Store) SearchFiltered(ctx context.Context, collection string, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if len(filters) > 0 {
		must := make([]*pb.Condition, 0, len(filters))
		for k, v := range filters {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", collection, err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := make(map[string]string, len(r.GetPayload()))
		for k, v := range r.GetPayload() {
			payload[k] = v.GetStringValue()
		}
		results[i] = SearchResult{ID: r.GetId().GetUuid(), Score: r.GetScore(), Payload: payload}
	}
	return results, nil
}

func toPayload(fields map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(fields))
	for k, val := range fields {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
