package history

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecentSearches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordSearch(ctx, "alice", "a quiet novel", "Fiction", "Sad", 12); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSearch(ctx, "alice", "space opera", "All", "All", 16); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSearch(ctx, "bob", "gardening tips", "Nonfiction", "Happy", 3); err != nil {
		t.Fatal(err)
	}

	records, err := s.RecentSearches(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].Query != "space opera" {
		t.Errorf("expected space opera first, got %q", records[0].Query)
	}
	if records[1].Query != "a quiet novel" {
		t.Errorf("expected a quiet novel second, got %q", records[1].Query)
	}
	if records[1].Category != "Fiction" || records[1].Tone != "Sad" {
		t.Errorf("expected Fiction/Sad, got %s/%s", records[1].Category, records[1].Tone)
	}
	if records[1].ResultCount != 12 {
		t.Errorf("expected 12 results, got %d", records[1].ResultCount)
	}
}

func TestAllFiltersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "All" is stored as NULL and read back as "All".
	if err := s.RecordSearch(ctx, "alice", "anything", "All", "All", 0); err != nil {
		t.Fatal(err)
	}

	records, err := s.RecentSearches(ctx, "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Category != "All" {
		t.Errorf("expected All category, got %q", records[0].Category)
	}
	if records[0].Tone != "All" {
		t.Errorf("expected All tone, got %q", records[0].Tone)
	}
}

func TestRecentSearchesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 5 {
		if err := s.RecordSearch(ctx, "alice", "q", "All", "All", 1); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.RecentSearches(ctx, "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestEmptyUserIDUsesDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordSearch(ctx, "", "anonymous search", "All", "All", 5); err != nil {
		t.Fatal(err)
	}

	records, err := s.RecentSearches(ctx, DefaultUserID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].UserID != DefaultUserID {
		t.Errorf("expected %s, got %s", DefaultUserID, records[0].UserID)
	}
}

func TestCountSearches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 2 {
		_ = s.RecordSearch(ctx, "alice", "q", "All", "All", 1)
	}
	_ = s.RecordSearch(ctx, "bob", "q", "All", "All", 1)

	count, err := s.CountSearches(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}

	// Empty user counts all users.
	count, err = s.CountSearches(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3, got %d", count)
	}
}

func TestFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddFavorite(ctx, "alice", 9780000000001); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFavorite(ctx, "alice", 9780000000002); err != nil {
		t.Fatal(err)
	}
	// Re-adding must not create a duplicate.
	if err := s.AddFavorite(ctx, "alice", 9780000000001); err != nil {
		t.Fatal(err)
	}

	favorites, err := s.ListFavorites(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(favorites) != 2 {
		t.Fatalf("expected 2 favorites, got %d", len(favorites))
	}

	removed, err := s.RemoveFavorite(ctx, "alice", 9780000000001)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected removal to report true")
	}

	// Removing again reports false.
	removed, err = s.RemoveFavorite(ctx, "alice", 9780000000001)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("expected removal to report false")
	}

	favorites, err = s.ListFavorites(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(favorites) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(favorites))
	}
	if favorites[0].ISBN13 != 9780000000002 {
		t.Errorf("expected 9780000000002, got %d", favorites[0].ISBN13)
	}
}

func TestFavoritesScopedByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddFavorite(ctx, "alice", 9780000000001)
	_ = s.AddFavorite(ctx, "bob", 9780000000001)

	favorites, err := s.ListFavorites(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(favorites) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(favorites))
	}

	if _, err := s.RemoveFavorite(ctx, "alice", 9780000000001); err != nil {
		t.Fatal(err)
	}

	// Bob's favorite is untouched.
	favorites, err = s.ListFavorites(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(favorites) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(favorites))
	}
}
