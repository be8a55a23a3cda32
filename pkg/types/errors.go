package types

import (
	"fmt"
	"time"
)

// ValidationError reports a search request that was rejected before any
// work happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// RateLimitError reports a request refused by the rate limiter.
// RetryAfter, when positive, is the wait until a request would be allowed.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
	}
	return "rate limit exceeded"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// EmbeddingError reports an embedding provider failure after all retry
// attempts were exhausted. Err is the last underlying cause.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// SearchError reports a retrieval, join or ranking failure. Stage names
// the pipeline stage that failed.
type SearchError struct {
	Stage string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed during %s: %v", e.Stage, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
