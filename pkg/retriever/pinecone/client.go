// Package pinecone implements the retriever interface against a
// Pinecone index.
package pinecone

import (
	"context"
	"fmt"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// Client queries one Pinecone index holding the book vectors. The
// namespace is fixed at connection time, so per-request namespaces are
// ignored; callers that need another namespace open another client.
type Client struct {
	cfg     Config
	pc      *pinecone.Client
	idxConn *pinecone.IndexConnection
}

// Config holds Pinecone-specific configuration.
type Config struct {
	retriever.Config

	// IndexName is the Pinecone index to query
	IndexName string

	// IndexHost is the direct host URL (optional, will be resolved from IndexName)
	IndexHost string
}

// NewClient creates a new Pinecone retriever client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.IndexName == "" && cfg.IndexHost == "" {
		return nil, fmt.Errorf("index name or host is required")
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	host, err := resolveHost(ctx, pc, cfg)
	if err != nil {
		return nil, err
	}

	idxConn, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: cfg.DefaultNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index: %w", err)
	}

	return &Client{
		cfg:     cfg,
		pc:      pc,
		idxConn: idxConn,
	}, nil
}

// resolveHost returns the configured host, or looks it up by index name.
func resolveHost(ctx context.Context, pc *pinecone.Client, cfg Config) (string, error) {
	if cfg.IndexHost != "" {
		return cfg.IndexHost, nil
	}
	idx, err := pc.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %q: %w", cfg.IndexName, err)
	}
	return idx.Host, nil
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

	resp, err := c.idxConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          req.QueryEmbedding,
		TopK:            uint32(topK),
		IncludeValues:   req.IncludeEmbeddings,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	matches := toMatches(resp.Matches)

	return &types.RetrievalResult{
		Matches:        matches,
		QueryEmbedding: req.QueryEmbedding,
		TotalMatches:   len(matches),
		Latency:        time.Since(start),
	}, nil
}

// QueryByID retrieves neighbors of an already stored vector. Ingestion
// writes vectors under decimal ISBN-13 IDs, so similar-book lookups
// pass the ISBN string straight through.
func (c *Client) QueryByID(ctx context.Context, id string, topK int, namespace string) (*types.RetrievalResult, error) {
	start := time.Now()

	if topK <= 0 {
		topK = 10
	}

	resp, err := c.idxConn.QueryByVectorId(ctx, &pinecone.QueryByVectorIdRequest{
		VectorId:        id,
		TopK:            uint32(topK),
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query by ID failed: %w", err)
	}

	matches := toMatches(resp.Matches)

	return &types.RetrievalResult{
		Matches:      matches,
		TotalMatches: len(matches),
		Latency:      time.Since(start),
	}, nil
}

// Close releases the index connection.
func (c *Client) Close() error {
	if c.idxConn != nil {
		return c.idxConn.Close()
	}
	return nil
}

// toMatches flattens scored vectors into the shared Match type.
func toMatches(scored []*pinecone.ScoredVector) []types.Match {
	matches := make([]types.Match, 0, len(scored))
	for _, sv := range scored {
		matches = append(matches, toMatch(sv))
	}
	return matches
}

func toMatch(sv *pinecone.ScoredVector) types.Match {
	match := types.Match{
		ID:    sv.Vector.Id,
		Score: sv.Score,
	}

	if sv.Vector.Values != nil {
		match.Embedding = *sv.Vector.Values
	}

	if sv.Vector.Metadata != nil {
		match.Metadata = sv.Vector.Metadata.AsMap()
		match.Text = retriever.ExtractText(match.Metadata)
	}

	return match
}
