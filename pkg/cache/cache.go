// Package cache provides TTL caching for search results and query
// embeddings. It enables sub-millisecond responses for repeated searches
// without re-embedding or re-querying the vector store.
package cache

import (
	"context"
	"errors"
	"time"
)

// Common errors. Keys are fixed-width digests (see keys.go), so only
// values can exceed the configured limits.
var (
	ErrNotFound      = errors.New("key not found")
	ErrValueTooLarge = errors.New("value exceeds maximum size")
)

// Cache defines the interface for TTL caching.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	// An expired entry is removed on read and reported as a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with optional TTL. Zero TTL falls back to the
	// configured default; a zero default means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// GetOrCompute returns the cached value for key, or runs compute and
	// stores its result with the given TTL. No lock is held while compute
	// runs; concurrent misses for the same key may compute more than once.
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error), ttl time.Duration) ([]byte, error)

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Has checks if a key exists without retrieving the value.
	Has(ctx context.Context, key string) bool

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error

	// CleanupExpired removes expired entries and returns how many were removed.
	CleanupExpired(ctx context.Context) int

	// Stats returns cache statistics.
	Stats() Stats

	// Close releases resources.
	Close() error
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	// Lookup counters. A read of an expired entry counts as both a miss
	// and an expiration.
	Hits   int64
	Misses int64

	// Write and removal counters.
	Sets        int64
	Deletes     int64
	Evictions   int64
	Expirations int64

	// Current occupancy. SizeBytes counts keys plus values.
	Size      int64
	SizeBytes int64

	// Configured limits, zero when unlimited.
	MaxSize      int64
	MaxSizeBytes int64
}

// HitRate returns the cache hit rate as a percentage. It is 0 when no
// lookups have happened yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Config holds cache configuration.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int64

	// MaxSizeBytes is the maximum memory in bytes (0 = unlimited).
	MaxSizeBytes int64

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// CleanupInterval is how often to sweep for expired entries.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults. 10k entries covers the whole
// catalog worth of embedding vectors with room for result payloads.
func DefaultConfig() Config {
	return Config{
		MaxSize:         10000,
		MaxSizeBytes:    100 * 1024 * 1024, // 100MB
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	}
}
