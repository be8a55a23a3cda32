// Package retriever defines the vector store query interface shared by
// the Pinecone, Qdrant and in-memory backends.
package retriever

import (
	"context"
	"errors"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// Common errors returned by retrievers.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidQuery     = errors.New("invalid query: must provide a query embedding")
	ErrConnectionFailed = errors.New("connection to vector database failed")
	ErrRateLimited      = errors.New("rate limited by vector database")
	ErrTimeout          = errors.New("query timeout")
)

// Retriever defines the interface for vector database query operations.
type Retriever interface {
	// Query retrieves matches similar to the given embedding.
	Query(ctx context.Context, req *types.RetrievalRequest) (*types.RetrievalResult, error)

	// QueryByID retrieves matches similar to an existing vector by its ID.
	QueryByID(ctx context.Context, id string, topK int, namespace string) (*types.RetrievalResult, error)

	// Close releases any resources held by the retriever.
	Close() error
}

// Config holds common retriever configuration.
type Config struct {
	// APIKey for authentication
	APIKey string

	// Host is the vector database endpoint
	Host string

	// Timeout for operations in seconds
	TimeoutSeconds int

	// MaxRetries for transient failures
	MaxRetries int

	// DefaultNamespace if not specified in requests
	DefaultNamespace string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds: 30,
	}
}

// ExtractText pulls the stored document text out of match metadata.
// Ingestion writes it under "tagged_description"; older indexes used
// "text" or "description".
func ExtractText(metadata map[string]interface{}) string {
	for _, key := range []string{"tagged_description", "text", "description"} {
		if text, ok := metadata[key].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
