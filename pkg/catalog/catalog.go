// Package catalog loads the book catalog CSV into an immutable
// in-memory index keyed by ISBN-13.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// requiredColumns must all be present in the CSV header. Optional
// columns (isbn10, subtitle, thumbnail, published_year, ...) default to
// their zero value when absent.
var requiredColumns = []string{
	"isbn13",
	"title",
	"authors",
	"description",
	"simple_categories",
	"joy",
	"surprise",
	"anger",
	"fear",
	"sadness",
	"disgust",
	"neutral",
}

// Catalog is a read-only book index. It is immutable after load; all
// methods are safe for concurrent use. Slices returned by accessors
// must not be modified.
type Catalog struct {
	books      []types.Book
	byISBN     map[int64]int
	categories []string
	skipped    int
}

// Load reads the catalog CSV at path.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	c, err := LoadReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadReader parses catalog CSV data. Columns are resolved by header
// name, so column order does not matter. Rows with a malformed ISBN or
// affect score are skipped and counted.
func LoadReader(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	c := &Catalog{
		byISBN: make(map[int64]int),
	}
	categorySet := make(map[string]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		book, ok := parseRow(record, col)
		if !ok {
			c.skipped++
			continue
		}

		// Last row wins on duplicate ISBNs
		if idx, dup := c.byISBN[book.ISBN13]; dup {
			c.books[idx] = book
			continue
		}

		c.byISBN[book.ISBN13] = len(c.books)
		c.books = append(c.books, book)
		if book.Category != "" {
			categorySet[book.Category] = struct{}{}
		}
	}

	c.categories = make([]string, 0, len(categorySet)+1)
	for category := range categorySet {
		c.categories = append(c.categories, category)
	}
	sort.Strings(c.categories)
	c.categories = append([]string{"All"}, c.categories...)

	return c, nil
}

// parseRow converts one CSV record into a Book. It returns false when
// the ISBN or an affect score does not parse.
func parseRow(record []string, col map[string]int) (types.Book, bool) {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	isbn13, err := strconv.ParseInt(field("isbn13"), 10, 64)
	if err != nil || isbn13 <= 0 {
		return types.Book{}, false
	}

	book := types.Book{
		ISBN13:            isbn13,
		ISBN10:            field("isbn10"),
		Title:             field("title"),
		Subtitle:          field("subtitle"),
		Category:          field("simple_categories"),
		Description:       field("description"),
		Thumbnail:         field("thumbnail"),
		TaggedDescription: field("tagged_description"),
	}

	for _, author := range strings.Split(field("authors"), ";") {
		if author = strings.TrimSpace(author); author != "" {
			book.Authors = append(book.Authors, author)
		}
	}

	affects := []struct {
		name string
		dst  *float64
	}{
		{"joy", &book.Joy},
		{"surprise", &book.Surprise},
		{"anger", &book.Anger},
		{"fear", &book.Fear},
		{"sadness", &book.Sadness},
		{"disgust", &book.Disgust},
		{"neutral", &book.Neutral},
	}
	for _, a := range affects {
		v, err := strconv.ParseFloat(field(a.name), 64)
		if err != nil {
			return types.Book{}, false
		}
		*a.dst = v
	}

	// Numeric extras are lenient: the source data stores them as floats
	// with gaps, so parse failures just leave the zero value
	book.PublishedYear = int(lenientFloat(field("published_year")))
	book.AverageRating = lenientFloat(field("average_rating"))
	book.NumPages = int(lenientFloat(field("num_pages")))
	book.RatingsCount = int(lenientFloat(field("ratings_count")))

	return book, true
}

func lenientFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Get returns the book for an ISBN-13.
func (c *Catalog) Get(isbn13 int64) (types.Book, bool) {
	idx, ok := c.byISBN[isbn13]
	if !ok {
		return types.Book{}, false
	}
	return c.books[idx], true
}

// Len returns the number of books loaded.
func (c *Catalog) Len() int {
	return len(c.books)
}

// Skipped returns the number of rows dropped during load.
func (c *Catalog) Skipped() int {
	return c.skipped
}

// Books returns all books in load order.
func (c *Catalog) Books() []types.Book {
	return c.books
}

// Categories returns the unique category labels sorted alphabetically,
// with "All" first.
func (c *Catalog) Categories() []string {
	return c.categories
}

// Join resolves IDs to books preserving the input order. Unknown IDs
// are skipped; the count of skipped IDs is returned alongside.
func (c *Catalog) Join(ids []int64) ([]types.Book, int) {
	books := make([]types.Book, 0, len(ids))
	missing := 0

	for _, id := range ids {
		book, ok := c.Get(id)
		if !ok {
			missing++
			continue
		}
		books = append(books, book)
	}

	return books, missing
}
