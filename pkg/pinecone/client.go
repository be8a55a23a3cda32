// Package pinecone uploads catalog vectors to a Pinecone index. It is
// the write side of ingestion; searches go through pkg/retriever.
package pinecone

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// Config holds upload client settings.
type Config struct {
	APIKey    string
	IndexName string
	Namespace string

	// Retry settings for transient upsert failures
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Client uploads book vectors to one index namespace. Vector IDs are
// decimal ISBN-13 strings, which is what the search side parses back.
type Client struct {
	cfg   Config
	pc    *pinecone.Client
	index *pinecone.IndexConnection
	stats Stats
}

// Stats counts upload outcomes. Counters are cumulative over the
// client's lifetime.
type Stats struct {
	UpsertedVectors int64
	FailedVectors   int64
	RetryCount      int64
	BatchCount      int64
}

// NewClient connects to the index named in cfg. The index must already
// exist; this client never creates one.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	// Control-plane lookup resolves the data-plane host
	desc, err := pc.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %q: %w", cfg.IndexName, err)
	}

	index, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      desc.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index: %w", err)
	}

	return &Client{
		cfg:   cfg,
		pc:    pc,
		index: index,
	}, nil
}

// UpsertBatch uploads one batch of book vectors, retrying transient
// failures with capped exponential backoff. A batch succeeds or fails
// as a whole; partial uploads are not tracked.
func (c *Client) UpsertBatch(ctx context.Context, vectors []*types.Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	records := toPineconeVectors(vectors)

	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			atomic.AddInt64(&c.stats.RetryCount, 1)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}

		if _, err := c.index.UpsertVectors(ctx, records); err != nil {
			lastErr = err
			if !retryable(err) {
				break
			}
			continue
		}

		atomic.AddInt64(&c.stats.UpsertedVectors, int64(len(vectors)))
		atomic.AddInt64(&c.stats.BatchCount, 1)
		return nil
	}

	atomic.AddInt64(&c.stats.FailedVectors, int64(len(vectors)))
	return fmt.Errorf("upsert failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// VectorCount returns how many vectors the target namespace holds,
// for post-ingest verification.
func (c *Client) VectorCount(ctx context.Context) (int64, error) {
	stats, err := c.index.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read index stats: %w", err)
	}

	namespace := c.cfg.Namespace
	if ns, ok := stats.Namespaces[namespace]; ok && ns != nil {
		return int64(ns.VectorCount), nil
	}
	if namespace == "" {
		return int64(stats.TotalVectorCount), nil
	}
	return 0, nil
}

// GetStats returns a snapshot of the upload counters.
func (c *Client) GetStats() Stats {
	return Stats{
		UpsertedVectors: atomic.LoadInt64(&c.stats.UpsertedVectors),
		FailedVectors:   atomic.LoadInt64(&c.stats.FailedVectors),
		RetryCount:      atomic.LoadInt64(&c.stats.RetryCount),
		BatchCount:      atomic.LoadInt64(&c.stats.BatchCount),
	}
}

// Close releases the index connection.
func (c *Client) Close() error {
	if c.index != nil {
		return c.index.Close()
	}
	return nil
}

func toPineconeVectors(vectors []*types.Vector) []*pinecone.Vector {
	records := make([]*pinecone.Vector, len(vectors))
	for i, v := range vectors {
		values := v.Values
		records[i] = &pinecone.Vector{
			Id:       v.ID,
			Values:   &values,
			Metadata: toMetadata(v.Metadata),
		}
	}
	return records
}

func toMetadata(m map[string]interface{}) *structpb.Struct {
	if len(m) == 0 {
		return nil
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil
	}
	return s
}

// retryable reports whether an upsert error is worth another attempt:
// rate limiting and temporary unavailability are, everything else
// (auth, dimension mismatch, bad request) is not.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, marker := range []string{"429", "503", "rate limit", "unavailable", "temporarily"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
