package catalog

import "strings"

const (
	// MaxDescriptionWords is the display truncation length.
	MaxDescriptionWords = 30

	// PlaceholderCover is served when a book has no thumbnail.
	PlaceholderCover = "assets/cover-not-found.jpg"

	// coverSizeSuffix requests the 800px rendition from the Google
	// Books image server.
	coverSizeSuffix = "&fife=w800"
)

// FormatAuthors renders an author list for display: one author
// verbatim, two joined with "and", more as "A, B and C".
func FormatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return authors[0]
	case 2:
		return authors[0] + " and " + authors[1]
	default:
		return strings.Join(authors[:len(authors)-1], ", ") + " and " + authors[len(authors)-1]
	}
}

// TruncateDescription returns the first maxWords whitespace-separated
// words followed by "..." when the description is longer.
func TruncateDescription(description string, maxWords int) string {
	words := strings.Fields(description)
	if len(words) <= maxWords {
		return description
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// CoverURL returns the sized cover image URL, or the placeholder when
// the book has no thumbnail.
func CoverURL(thumbnail string) string {
	if thumbnail == "" {
		return PlaceholderCover
	}
	return thumbnail + coverSizeSuffix
}
