package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

func seededStore(t *testing.T) *Store {
	t.Helper()

	s := New()
	vectors := []*types.Vector{
		types.NewVectorWithMetadata("9780000000001", []float32{1, 0, 0}, map[string]interface{}{
			"tagged_description": "9780000000001 A detective story",
			"category":           "Fiction",
		}),
		types.NewVectorWithMetadata("9780000000002", []float32{0.9, 0.1, 0}, map[string]interface{}{
			"tagged_description": "9780000000002 Another mystery",
			"category":           "Fiction",
		}),
		types.NewVectorWithMetadata("9780000000003", []float32{0, 1, 0}, map[string]interface{}{
			"tagged_description": "9780000000003 A physics textbook",
			"category":           "Nonfiction",
		}),
	}

	if _, err := s.Upsert(context.Background(), "books", vectors); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return s
}

func TestStore_QueryRanksBySimilarity(t *testing.T) {
	s := seededStore(t)

	result, err := s.Query(context.Background(), &types.RetrievalRequest{
		QueryEmbedding:  []float32{1, 0, 0},
		TopK:            3,
		Namespace:       "books",
		IncludeMetadata: true,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(result.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(result.Matches))
	}

	wantOrder := []string{"9780000000001", "9780000000002", "9780000000003"}
	for i, want := range wantOrder {
		if result.Matches[i].ID != want {
			t.Errorf("match %d: expected %s, got %s", i, want, result.Matches[i].ID)
		}
	}

	for i := 1; i < len(result.Matches); i++ {
		if result.Matches[i].Score > result.Matches[i-1].Score {
			t.Errorf("matches not sorted: score %v after %v",
				result.Matches[i].Score, result.Matches[i-1].Score)
		}
	}

	if result.Matches[0].Text != "9780000000001 A detective story" {
		t.Errorf("expected text from metadata, got %q", result.Matches[0].Text)
	}
}

func TestStore_QueryTopK(t *testing.T) {
	s := seededStore(t)

	result, err := s.Query(context.Background(), &types.RetrievalRequest{
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           2,
		Namespace:      "books",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(result.Matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(result.Matches))
	}
	if result.TotalMatches != 3 {
		t.Errorf("expected 3 total matches, got %d", result.TotalMatches)
	}
}

func TestStore_QueryMissingEmbedding(t *testing.T) {
	s := seededStore(t)

	_, err := s.Query(context.Background(), &types.RetrievalRequest{
		TopK:      3,
		Namespace: "books",
	})
	if !errors.Is(err, retriever.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestStore_QueryFilter(t *testing.T) {
	s := seededStore(t)

	result, err := s.Query(context.Background(), &types.RetrievalRequest{
		QueryEmbedding:  []float32{1, 0, 0},
		TopK:            3,
		Namespace:       "books",
		Filter:          map[string]interface{}{"category": "Nonfiction"},
		IncludeMetadata: true,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].ID != "9780000000003" {
		t.Errorf("expected 9780000000003, got %s", result.Matches[0].ID)
	}
}

func TestStore_QueryByID(t *testing.T) {
	s := seededStore(t)

	result, err := s.QueryByID(context.Background(), "9780000000001", 3, "books")
	if err != nil {
		t.Fatalf("QueryByID failed: %v", err)
	}

	if len(result.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(result.Matches))
	}

	// The source vector is its own best match
	if result.Matches[0].ID != "9780000000001" {
		t.Errorf("expected source vector first, got %s", result.Matches[0].ID)
	}
	if result.Matches[0].Score < 0.999 {
		t.Errorf("expected self score near 1.0, got %v", result.Matches[0].Score)
	}
	if result.Matches[1].ID != "9780000000002" {
		t.Errorf("expected nearest neighbor second, got %s", result.Matches[1].ID)
	}
}

func TestStore_QueryByID_NotFound(t *testing.T) {
	s := seededStore(t)

	if _, err := s.QueryByID(context.Background(), "missing", 3, "books"); !errors.Is(err, retriever.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "books", []*types.Vector{types.NewVector("a", []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := s.Upsert(ctx, "books", []*types.Vector{types.NewVector("a", []float32{0, 1})}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if got := s.Count("books"); got != 1 {
		t.Errorf("expected 1 vector after replace, got %d", got)
	}

	result, err := s.Query(ctx, &types.RetrievalRequest{
		QueryEmbedding: []float32{0, 1},
		TopK:           1,
		Namespace:      "books",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.Matches[0].Score < 0.999 {
		t.Errorf("expected replaced vector to match query, score %v", result.Matches[0].Score)
	}
}

func TestStore_NamespaceIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "books", []*types.Vector{types.NewVector("a", []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := s.Query(ctx, &types.RetrievalRequest{
		QueryEmbedding: []float32{1, 0},
		TopK:           5,
		Namespace:      "other",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected 0 matches in empty namespace, got %d", len(result.Matches))
	}
}
