// Package memory implements a brute-force in-memory retriever. It backs
// local development and tests where no vector database is running, and
// accepts upserts so the ingest pipeline can target it directly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/vecmath"
)

// Store holds vectors per namespace and scores queries by cosine
// similarity. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*types.Vector
}

// New creates an empty store.
func New() *Store {
	return &Store{
		namespaces: make(map[string]map[string]*types.Vector),
	}
}

// Upsert inserts or replaces vectors by ID.
func (s *Store) Upsert(ctx context.Context, namespace string, vectors []*types.Vector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]*types.Vector, len(vectors))
		s.namespaces[namespace] = ns
	}

	for _, v := range vectors {
		ns[v.ID] = v.Clone()
	}

	return len(vectors), nil
}

// Count returns the number of vectors in a namespace.
func (s *Store) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// Query scores every vector in the namespace against the query
// embedding and returns the topK most similar.
func (s *Store) Query(ctx context.Context, req *types.RetrievalRequest) (*types.RetrievalResult, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, retriever.ErrInvalidQuery
	}

	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	matches := s.scoreAll(req.Namespace, req.QueryEmbedding, req.Filter, req.IncludeEmbeddings, req.IncludeMetadata)
	s.mu.RUnlock()

	total := len(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}

	return &types.RetrievalResult{
		Matches:        matches,
		QueryEmbedding: req.QueryEmbedding,
		TotalMatches:   total,
		Latency:        time.Since(start),
	}, nil
}

// QueryByID looks up the stored vector and queries with it. The source
// vector scores 1.0 against itself and appears in the results, matching
// the hosted backends.
func (s *Store) QueryByID(ctx context.Context, id string, topK int, namespace string) (*types.RetrievalResult, error) {
	s.mu.RLock()
	v, ok := s.namespaces[namespace][id]
	s.mu.RUnlock()

	if !ok {
		return nil, retriever.ErrNotFound
	}

	return s.Query(ctx, &types.RetrievalRequest{
		QueryEmbedding:    v.Values,
		TopK:              topK,
		Namespace:         namespace,
		IncludeEmbeddings: true,
		IncludeMetadata:   true,
	})
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// scoreAll returns all namespace vectors passing the filter, sorted by
// descending similarity. Callers must hold mu.
func (s *Store) scoreAll(namespace string, query []float32, filter map[string]interface{}, includeEmbeddings, includeMetadata bool) []types.Match {
	ns := s.namespaces[namespace]
	matches := make([]types.Match, 0, len(ns))

	for _, v := range ns {
		if !matchesFilter(v.Metadata, filter) {
			continue
		}

		match := types.Match{
			ID:    v.ID,
			Score: float32(vecmath.CosineSimilarity(query, v.Values)),
		}

		if includeEmbeddings {
			match.Embedding = v.Values
		}
		if includeMetadata {
			match.Metadata = v.Metadata
			match.Text = retriever.ExtractText(v.Metadata)
		}

		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// matchesFilter reports whether metadata satisfies every filter entry
// by exact equality.
func matchesFilter(metadata, filter map[string]interface{}) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}
