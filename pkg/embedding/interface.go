// Package embedding defines the text embedding provider interface and
// the caching and rate-limiting wrappers the recommendation pipeline
// composes around it.
package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/cache"
)

// Common errors returned by embedding providers.
var (
	ErrEmptyInput     = errors.New("empty input text")
	ErrRateLimited    = errors.New("rate limited by embedding provider")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrModelNotFound  = errors.New("embedding model not found")
	ErrContextTooLong = errors.New("input text exceeds model context length")
)

// Provider defines the interface for text embedding services.
type Provider interface {
	// Embed converts a single text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts into vector embeddings.
	// More efficient than calling Embed multiple times.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// CachedProvider wraps a Provider with a TTL cache so repeated queries
// are never embedded twice. Vectors are stored as little-endian float32
// bytes under cache.EmbeddingKey. Safe for concurrent use.
type CachedProvider struct {
	provider Provider
	cache    cache.Cache
	ttl      time.Duration
}

// NewCachedProvider creates a cached embedding provider. Embeddings are
// stable for a given model, so the TTL is typically much longer than
// the search-result TTL; ttl <= 0 defaults to 24h.
func NewCachedProvider(provider Provider, c cache.Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{
		provider: provider,
		cache:    c,
		ttl:      ttl,
	}
}

// Embed returns the cached embedding or computes and caches it.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	key := cache.EmbeddingKey(c.provider.ModelName(), text)
	data, err := c.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		vec, err := c.provider.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return encodeVector(vec), nil
	}, c.ttl)
	if err != nil {
		return nil, err
	}

	return decodeVector(data)
}

// EmbedBatch embeds multiple texts, using the cache where possible and
// batching only the misses through the underlying provider.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	uncached := make([]string, 0)
	uncachedIdx := make([]int, 0)

	// Check cache
	for i, text := range texts {
		key := cache.EmbeddingKey(c.provider.ModelName(), text)
		if data, err := c.cache.Get(ctx, key); err == nil {
			vec, err := decodeVector(data)
			if err != nil {
				return nil, err
			}
			results[i] = vec
		} else {
			uncached = append(uncached, text)
			uncachedIdx = append(uncachedIdx, i)
		}
	}

	// Embed the misses
	if len(uncached) > 0 {
		embeddings, err := c.provider.EmbedBatch(ctx, uncached)
		if err != nil {
			return nil, err
		}

		for i, vec := range embeddings {
			results[uncachedIdx[i]] = vec

			key := cache.EmbeddingKey(c.provider.ModelName(), uncached[i])
			_ = c.cache.Set(ctx, key, encodeVector(vec), c.ttl)
		}
	}

	return results, nil
}

// Dimension returns the embedding dimension.
func (c *CachedProvider) Dimension() int {
	return c.provider.Dimension()
}

// ModelName returns the model name.
func (c *CachedProvider) ModelName() string {
	return c.provider.ModelName()
}

// encodeVector serializes an embedding as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes an embedding written by encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
