package recommend

import (
	"fmt"
	"sort"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// ToneAll keeps results in relevance order.
const ToneAll = "All"

// toneOrder is the display order for Tones().
var toneOrder = []string{"Happy", "Surprising", "Angry", "Suspenseful", "Sad"}

// toneFields maps each tone label to the affect score it ranks by.
var toneFields = map[string]func(*types.Book) float64{
	"Happy":       func(b *types.Book) float64 { return b.Joy },
	"Surprising":  func(b *types.Book) float64 { return b.Surprise },
	"Angry":       func(b *types.Book) float64 { return b.Anger },
	"Suspenseful": func(b *types.Book) float64 { return b.Fear },
	"Sad":         func(b *types.Book) float64 { return b.Sadness },
}

// ValidateTones checks that the tone list and the ranking table agree.
// Run at startup so an edit to one cannot ship without the other.
func ValidateTones() error {
	if len(toneOrder) != len(toneFields) {
		return fmt.Errorf("tone table mismatch: %d listed, %d mapped", len(toneOrder), len(toneFields))
	}
	for _, tone := range toneOrder {
		if _, ok := toneFields[tone]; !ok {
			return fmt.Errorf("tone %q has no ranking field", tone)
		}
	}
	return nil
}

// Tones returns the selectable tone labels, "All" first.
func Tones() []string {
	tones := make([]string, 0, len(toneOrder)+1)
	tones = append(tones, ToneAll)
	tones = append(tones, toneOrder...)
	return tones
}

// ToneScore returns the affect score a tone ranks by. Unknown tones
// and ToneAll score zero.
func ToneScore(b *types.Book, tone string) float64 {
	score, ok := toneFields[tone]
	if !ok {
		return 0
	}
	return score(b)
}

// ValidTone reports whether tone is a selectable label.
func ValidTone(tone string) bool {
	if tone == ToneAll {
		return true
	}
	_, ok := toneFields[tone]
	return ok
}

// rankByTone stably sorts books by the tone's affect score, descending.
// ToneAll leaves the incoming relevance order untouched.
func rankByTone(books []types.Book, tone string) {
	score, ok := toneFields[tone]
	if !ok {
		return
	}

	sort.SliceStable(books, func(i, j int) bool {
		return score(&books[i]) > score(&books[j])
	})
}
