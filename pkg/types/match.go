package types

import "time"

// Match represents a vector store hit with its relevance score.
type Match struct {
	// ID is the unique identifier in the vector database
	ID string

	// Text is the stored document text (the tagged description for books)
	Text string

	// Embedding is the vector representation (float32 for memory efficiency)
	Embedding []float32

	// Score is the relevance score from the vector DB query (higher = more relevant)
	Score float32

	// Metadata contains additional key-value pairs
	Metadata map[string]interface{}
}

// NewMatch creates a new Match with initialized fields.
func NewMatch(id, text string, score float32) *Match {
	return &Match{
		ID:       id,
		Text:     text,
		Score:    score,
		Metadata: make(map[string]interface{}),
	}
}

// Dimension returns the embedding dimensionality.
func (m *Match) Dimension() int {
	return len(m.Embedding)
}

// RetrievalRequest represents a query to the vector database.
type RetrievalRequest struct {
	// Query is the text query (will be embedded if an embedding provider is set)
	Query string

	// QueryEmbedding is the pre-computed query vector (optional if Query is set)
	QueryEmbedding []float32

	// TopK is the number of results to retrieve
	TopK int

	// Namespace is the vector DB namespace/collection
	Namespace string

	// Filter is metadata filter criteria
	Filter map[string]interface{}

	// IncludeEmbeddings requests embeddings in the response
	IncludeEmbeddings bool

	// IncludeMetadata requests metadata in the response
	IncludeMetadata bool
}

// RetrievalResult holds the output of a vector database query.
type RetrievalResult struct {
	// Matches are the retrieved hits, most relevant first
	Matches []Match

	// QueryEmbedding is the embedding used for the query
	QueryEmbedding []float32

	// TotalMatches is the total number of matches (may exceed len(Matches))
	TotalMatches int

	// Latency is the query execution time
	Latency time.Duration
}
