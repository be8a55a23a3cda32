package types

// Book represents one catalog record. Affect scores are classifier
// probabilities in [0, 1] computed over the book description.
type Book struct {
	// ISBN13 is the canonical identifier used across the catalog,
	// the vector store and the history store
	ISBN13 int64

	// ISBN10 is the legacy identifier (may be empty)
	ISBN10 string

	// Title is the main title without subtitle
	Title string

	// Subtitle is the optional subtitle
	Subtitle string

	// Authors holds individual author names
	Authors []string

	// Category is the simplified category label ("Fiction", "Nonfiction", ...)
	Category string

	// Description is the full back-cover description
	Description string

	// Thumbnail is the raw cover image URL (may be empty)
	Thumbnail string

	PublishedYear int
	AverageRating float64
	NumPages      int
	RatingsCount  int

	// Affect scores, one per emotion class
	Joy      float64
	Surprise float64
	Anger    float64
	Fear     float64
	Sadness  float64
	Disgust  float64
	Neutral  float64

	// TaggedDescription is the ISBN-prefixed description that was embedded
	// into the vector store
	TaggedDescription string
}

// Recommendation pairs a catalog book with the retrieval score of the
// match that produced it, plus display-ready fields.
type Recommendation struct {
	Book Book

	// Score is the vector similarity score (higher = more relevant)
	Score float32

	// AuthorsText is the formatted author list ("A", "A and B", "A, B and C")
	AuthorsText string

	// ShortDescription is the description truncated for display
	ShortDescription string

	// CoverURL is the sized thumbnail URL, or the placeholder when missing
	CoverURL string
}
