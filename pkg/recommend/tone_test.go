package recommend

import (
	"testing"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

func TestValidateTones(t *testing.T) {
	if err := ValidateTones(); err != nil {
		t.Fatalf("expected consistent tone table, got %v", err)
	}
}

func TestTones(t *testing.T) {
	tones := Tones()

	if len(tones) != 6 {
		t.Fatalf("expected 6 tones, got %d", len(tones))
	}
	if tones[0] != ToneAll {
		t.Errorf("expected All first, got %q", tones[0])
	}

	want := []string{"All", "Happy", "Surprising", "Angry", "Suspenseful", "Sad"}
	for i, tone := range want {
		if tones[i] != tone {
			t.Errorf("position %d: expected %q, got %q", i, tone, tones[i])
		}
	}
}

func TestValidTone(t *testing.T) {
	tests := []struct {
		tone  string
		valid bool
	}{
		{"All", true},
		{"Happy", true},
		{"Surprising", true},
		{"Angry", true},
		{"Suspenseful", true},
		{"Sad", true},
		{"happy", false},
		{"Joyful", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidTone(tt.tone); got != tt.valid {
			t.Errorf("ValidTone(%q) = %v, expected %v", tt.tone, got, tt.valid)
		}
	}
}

func TestToneScore(t *testing.T) {
	book := types.Book{Joy: 0.1, Surprise: 0.2, Anger: 0.3, Fear: 0.4, Sadness: 0.5}

	tests := []struct {
		tone  string
		score float64
	}{
		{"Happy", 0.1},
		{"Surprising", 0.2},
		{"Angry", 0.3},
		{"Suspenseful", 0.4},
		{"Sad", 0.5},
		{"All", 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		if got := ToneScore(&book, tt.tone); got != tt.score {
			t.Errorf("ToneScore(%q) = %v, expected %v", tt.tone, got, tt.score)
		}
	}
}

func TestRankByTone(t *testing.T) {
	books := []types.Book{
		{ISBN13: 1, Joy: 0.1},
		{ISBN13: 2, Joy: 0.9},
		{ISBN13: 3, Joy: 0.5},
	}

	rankByTone(books, "Happy")

	want := []int64{2, 3, 1}
	for i, isbn := range want {
		if books[i].ISBN13 != isbn {
			t.Errorf("position %d: expected %d, got %d", i, isbn, books[i].ISBN13)
		}
	}
}

func TestRankByTone_Stable(t *testing.T) {
	// Equal scores keep their incoming (relevance) order.
	books := []types.Book{
		{ISBN13: 1, Sadness: 0.5},
		{ISBN13: 2, Sadness: 0.5},
		{ISBN13: 3, Sadness: 0.9},
		{ISBN13: 4, Sadness: 0.5},
	}

	rankByTone(books, "Sad")

	want := []int64{3, 1, 2, 4}
	for i, isbn := range want {
		if books[i].ISBN13 != isbn {
			t.Errorf("position %d: expected %d, got %d", i, isbn, books[i].ISBN13)
		}
	}
}

func TestRankByTone_UnknownToneKeepsOrder(t *testing.T) {
	books := []types.Book{
		{ISBN13: 1, Joy: 0.1},
		{ISBN13: 2, Joy: 0.9},
	}

	rankByTone(books, ToneAll)

	if books[0].ISBN13 != 1 || books[1].ISBN13 != 2 {
		t.Errorf("expected order unchanged, got %d, %d", books[0].ISBN13, books[1].ISBN13)
	}
}

func BenchmarkRankByTone(b *testing.B) {
	base := make([]types.Book, 50)
	for i := range base {
		base[i] = types.Book{
			ISBN13:  int64(9780000000000 + i),
			Joy:     float64(i%7) / 7,
			Sadness: float64(i%5) / 5,
		}
	}
	books := make([]types.Book, len(base))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(books, base)
		rankByTone(books, "Happy")
	}
}
