package catalog

import (
	"strings"
	"testing"
)

const testHeader = "isbn13,isbn10,title,subtitle,authors,simple_categories,thumbnail,description,published_year,average_rating,num_pages,ratings_count,tagged_description,joy,surprise,anger,fear,sadness,disgust,neutral"

const testCSV = testHeader + "\n" +
	"9780000000001,1400082471,Gilead,A Novel,Marilynne Robinson,Fiction,http://cover.test/1?img=1,An aging preacher writes to his young son,2004.0,3.85,247,361,9780000000001 An aging preacher writes to his young son,0.9,0.1,0.05,0.1,0.2,0.01,0.3\n" +
	"9780000000002,,The Mystery,,Agatha Christie;Charles Osborne,Fiction,,A famous detective solves a case,1938.0,4.1,288,5000,,0.2,0.8,0.1,0.6,0.1,0.02,0.2\n" +
	"9780000000003,,A Brief History,,Stephen Hawking,Nonfiction,http://cover.test/3?img=1,The universe explained,1988.0,4.2,212,9000,,0.1,0.7,0.05,0.2,0.05,0.01,0.5\n"

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := LoadReader(strings.NewReader(testCSV))
	if err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}
	return c
}

func TestLoadReader(t *testing.T) {
	c := loadTestCatalog(t)

	if c.Len() != 3 {
		t.Errorf("expected 3 books, got %d", c.Len())
	}
	if c.Skipped() != 0 {
		t.Errorf("expected 0 skipped rows, got %d", c.Skipped())
	}

	book, ok := c.Get(9780000000001)
	if !ok {
		t.Fatal("expected to find book 9780000000001")
	}
	if book.Title != "Gilead" {
		t.Errorf("expected title Gilead, got %q", book.Title)
	}
	if book.Subtitle != "A Novel" {
		t.Errorf("expected subtitle, got %q", book.Subtitle)
	}
	if book.PublishedYear != 2004 {
		t.Errorf("expected published year 2004, got %d", book.PublishedYear)
	}
	if book.Joy != 0.9 {
		t.Errorf("expected joy 0.9, got %v", book.Joy)
	}

	if _, ok := c.Get(42); ok {
		t.Error("expected unknown ISBN to be absent")
	}
}

func TestLoadReader_SplitsAuthors(t *testing.T) {
	c := loadTestCatalog(t)

	book, ok := c.Get(9780000000002)
	if !ok {
		t.Fatal("expected to find book 9780000000002")
	}

	want := []string{"Agatha Christie", "Charles Osborne"}
	if len(book.Authors) != len(want) {
		t.Fatalf("expected %d authors, got %d", len(want), len(book.Authors))
	}
	for i := range want {
		if book.Authors[i] != want[i] {
			t.Errorf("author %d: expected %q, got %q", i, want[i], book.Authors[i])
		}
	}
}

func TestLoadReader_SkipsMalformedRows(t *testing.T) {
	csv := testHeader + "\n" +
		"9780000000001,,Good Book,,Some Author,Fiction,,Fine,2000,4.0,100,10,,0.1,0.1,0.1,0.1,0.1,0.1,0.1\n" +
		"not-a-number,,Bad ISBN,,Some Author,Fiction,,Fine,2000,4.0,100,10,,0.1,0.1,0.1,0.1,0.1,0.1,0.1\n" +
		"9780000000003,,Bad Affect,,Some Author,Fiction,,Fine,2000,4.0,100,10,,oops,0.1,0.1,0.1,0.1,0.1,0.1\n"

	c, err := LoadReader(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}

	if c.Len() != 1 {
		t.Errorf("expected 1 book, got %d", c.Len())
	}
	if c.Skipped() != 2 {
		t.Errorf("expected 2 skipped rows, got %d", c.Skipped())
	}
}

func TestLoadReader_MissingColumn(t *testing.T) {
	csv := "isbn13,title,authors,description,simple_categories,surprise,anger,fear,sadness,disgust,neutral\n"

	if _, err := LoadReader(strings.NewReader(csv)); err == nil {
		t.Error("expected error for missing joy column")
	}
}

func TestLoadReader_ColumnOrderIndependent(t *testing.T) {
	csv := "title,joy,surprise,anger,fear,sadness,disgust,neutral,isbn13,authors,description,simple_categories\n" +
		"Reordered,0.5,0.1,0.1,0.1,0.1,0.1,0.1,9780000000009,Some Author,Works fine,Fiction\n"

	c, err := LoadReader(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}

	book, ok := c.Get(9780000000009)
	if !ok {
		t.Fatal("expected to find book 9780000000009")
	}
	if book.Title != "Reordered" {
		t.Errorf("expected title Reordered, got %q", book.Title)
	}
	if book.Joy != 0.5 {
		t.Errorf("expected joy 0.5, got %v", book.Joy)
	}
}

func TestLoadReader_DuplicateISBNLastWins(t *testing.T) {
	csv := testHeader + "\n" +
		"9780000000001,,First,,Some Author,Fiction,,Fine,2000,4.0,100,10,,0.1,0.1,0.1,0.1,0.1,0.1,0.1\n" +
		"9780000000001,,Second,,Some Author,Fiction,,Fine,2000,4.0,100,10,,0.1,0.1,0.1,0.1,0.1,0.1,0.1\n"

	c, err := LoadReader(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadReader failed: %v", err)
	}

	if c.Len() != 1 {
		t.Fatalf("expected 1 book, got %d", c.Len())
	}
	book, _ := c.Get(9780000000001)
	if book.Title != "Second" {
		t.Errorf("expected last duplicate to win, got %q", book.Title)
	}
}

func TestCatalog_Categories(t *testing.T) {
	c := loadTestCatalog(t)

	want := []string{"All", "Fiction", "Nonfiction"}
	got := c.Categories()

	if len(got) != len(want) {
		t.Fatalf("expected %d categories, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("category %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestCatalog_Join(t *testing.T) {
	c := loadTestCatalog(t)

	books, missing := c.Join([]int64{9780000000003, 9780000000001, 42})

	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	if missing != 1 {
		t.Errorf("expected 1 missing, got %d", missing)
	}

	// Input order is preserved
	if books[0].ISBN13 != 9780000000003 || books[1].ISBN13 != 9780000000001 {
		t.Errorf("expected order [9780000000003 9780000000001], got [%d %d]",
			books[0].ISBN13, books[1].ISBN13)
	}
}

func TestFormatAuthors(t *testing.T) {
	tests := []struct {
		name    string
		authors []string
		want    string
	}{
		{"none", nil, ""},
		{"one", []string{"Marilynne Robinson"}, "Marilynne Robinson"},
		{"two", []string{"Agatha Christie", "Charles Osborne"}, "Agatha Christie and Charles Osborne"},
		{"three", []string{"A", "B", "C"}, "A, B and C"},
		{"four", []string{"A", "B", "C", "D"}, "A, B, C and D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAuthors(tt.authors); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTruncateDescription(t *testing.T) {
	short := "A short description"
	if got := TruncateDescription(short, 30); got != short {
		t.Errorf("expected short description unchanged, got %q", got)
	}

	exact := strings.TrimSpace(strings.Repeat("word ", 30))
	if got := TruncateDescription(exact, 30); got != exact {
		t.Errorf("expected 30-word description unchanged, got %q", got)
	}

	long := strings.TrimSpace(strings.Repeat("word ", 31))
	want := exact + "..."
	if got := TruncateDescription(long, 30); got != want {
		t.Errorf("expected truncated description %q, got %q", want, got)
	}
}

func TestCoverURL(t *testing.T) {
	if got := CoverURL("http://cover.test/1?img=1"); got != "http://cover.test/1?img=1&fife=w800" {
		t.Errorf("expected sized URL, got %q", got)
	}
	if got := CoverURL(""); got != PlaceholderCover {
		t.Errorf("expected placeholder, got %q", got)
	}
}
