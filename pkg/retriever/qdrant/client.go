// Package qdrant implements the retriever interface against a Qdrant
// collection over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// Client queries one Qdrant collection holding the book vectors.
type Client struct {
	cfg        Config
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
}

// Config holds Qdrant-specific configuration.
type Config struct {
	retriever.Config

	// Collection is the Qdrant collection to query
	Collection string

	// UseTLS enables TLS for the connection
	UseTLS bool

	// GRPCPort is the gRPC port (default: 6334)
	GRPCPort int
}

// NewClient creates a new Qdrant retriever client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = 6334
	}

	var opts []grpc.DialOption
	if cfg.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	return &Client{
		cfg:        cfg,
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: cfg.Collection,
	}, nil
}

// Query retrieves matches similar to the given embedding.
func (c *Client) Query(ctx context.Context, req *types.RetrievalRequest) (*types.RetrievalResult, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, retriever.ErrInvalidQuery
	}

	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	resp, err := c.points.Search(c.authed(ctx), &pb.SearchPoints{
		CollectionName: c.collection,
		Vector:         req.QueryEmbedding,
		Limit:          uint64(topK),
		Filter:         buildFilter(req.Filter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: req.IncludeMetadata},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: req.IncludeEmbeddings},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]types.Match, 0, len(resp.Result))
	for _, point := range resp.Result {
		matches = append(matches, toMatch(point))
	}

	return &types.RetrievalResult{
		Matches:        matches,
		QueryEmbedding: req.QueryEmbedding,
		TotalMatches:   len(matches),
		Latency:        time.Since(start),
	}, nil
}

// QueryByID retrieves neighbors of an already stored vector. Ingestion
// writes points under numeric ISBN-13 IDs, so an id that parses as an
// integer is looked up as a number and anything else as a UUID.
func (c *Client) QueryByID(ctx context.Context, id string, topK int, namespace string) (*types.RetrievalResult, error) {
	start := time.Now()

	if topK <= 0 {
		topK = 10
	}

	getResp, err := c.points.Get(c.authed(ctx), &pb.GetPoints{
		CollectionName: c.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get point failed: %w", err)
	}
	if len(getResp.Result) == 0 {
		return nil, retriever.ErrNotFound
	}

	vector := pointVector(getResp.Result[0])
	if len(vector) == 0 {
		return nil, fmt.Errorf("point %s has no vector", id)
	}

	result, err := c.Query(ctx, &types.RetrievalRequest{
		QueryEmbedding:    vector,
		TopK:              topK,
		Namespace:         namespace,
		IncludeEmbeddings: true,
		IncludeMetadata:   true,
	})
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	return result, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// authed attaches the api-key metadata when one is configured.
func (c *Client) authed(ctx context.Context) context.Context {
	if c.cfg.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", c.cfg.APIKey)
}

// pointID builds a numeric PointId for integer ids, UUID otherwise.
func pointID(id string) *pb.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

// toMatch flattens one scored point into the shared Match type.
func toMatch(point *pb.ScoredPoint) types.Match {
	match := types.Match{Score: point.Score}

	if point.Id != nil {
		switch id := point.Id.PointIdOptions.(type) {
		case *pb.PointId_Num:
			match.ID = strconv.FormatUint(id.Num, 10)
		case *pb.PointId_Uuid:
			match.ID = id.Uuid
		}
	}

	if point.Vectors != nil {
		if vec := point.Vectors.GetVector(); vec != nil {
			match.Embedding = vec.Data
		}
	}

	if point.Payload != nil {
		match.Metadata = payloadToMap(point.Payload)
		match.Text = retriever.ExtractText(match.Metadata)
	}

	return match
}

// pointVector pulls the stored embedding out of a retrieved point.
func pointVector(point *pb.RetrievedPoint) []float32 {
	if point.Vectors == nil {
		return nil
	}
	if vec := point.Vectors.GetVector(); vec != nil {
		return vec.Data
	}
	return nil
}

// buildFilter converts equality constraints into a Qdrant must filter.
// Strings match as keywords, which covers the category payload field;
// integers and booleans match exactly. Other value types are skipped.
func buildFilter(filter map[string]interface{}) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*pb.Condition, 0, len(filter))
	for key, value := range filter {
		if cond := fieldMatch(key, value); cond != nil {
			conditions = append(conditions, cond)
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}

func fieldMatch(key string, value interface{}) *pb.Condition {
	var match *pb.Match

	switch v := value.(type) {
	case string:
		match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}
	case int:
		match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: v}}
	case bool:
		match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v}}
	default:
		return nil
	}

	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}

// payloadToMap converts a Qdrant payload into plain Go values.
func payloadToMap(payload map[string]*pb.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}

	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = payloadValue(v)
	}
	return result
}

func payloadValue(v *pb.Value) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *pb.Value_NullValue:
		return nil
	case *pb.Value_DoubleValue:
		return val.DoubleValue
	case *pb.Value_IntegerValue:
		return val.IntegerValue
	case *pb.Value_StringValue:
		return val.StringValue
	case *pb.Value_BoolValue:
		return val.BoolValue
	case *pb.Value_ListValue:
		if val.ListValue == nil {
			return nil
		}
		list := make([]interface{}, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = payloadValue(item)
		}
		return list
	case *pb.Value_StructValue:
		if val.StructValue == nil {
			return nil
		}
		return payloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
