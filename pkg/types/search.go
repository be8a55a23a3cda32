package types

import "time"

// SearchRequest describes one recommendation query.
type SearchRequest struct {
	// Query is the free-text description of what to read
	Query string

	// Category filters results to one catalog category; "All" disables the filter
	Category string

	// Tone re-ranks results by emotional tone; "All" keeps relevance order
	Tone string

	// InitialK is the number of vector matches fetched before filtering
	InitialK int

	// FinalK is the number of recommendations returned
	FinalK int

	// UserID attributes the search in the history store; empty is anonymous
	UserID string
}

// SearchResult holds the final output of the recommendation pipeline.
type SearchResult struct {
	// Recommendations are the ranked books, best first
	Recommendations []Recommendation

	// Cached reports whether the result came from the result cache
	Cached bool

	// Stats contains processing statistics
	Stats SearchStats
}

// SearchStats tracks pipeline counters and latencies for one search.
type SearchStats struct {
	// Retrieved is the number of matches fetched from the vector DB
	Retrieved int

	// Skipped counts matches dropped for a malformed or unknown identifier
	Skipped int

	// Returned is the number of recommendations in the final output
	Returned int

	// EmbeddingLatency is time spent embedding the query
	EmbeddingLatency time.Duration

	// RetrievalLatency is time spent querying the vector DB
	RetrievalLatency time.Duration

	// TotalLatency is end-to-end processing time
	TotalLatency time.Duration
}
