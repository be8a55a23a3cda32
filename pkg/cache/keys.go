package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// HashText creates a SHA-256 hash of the text.
func HashText(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16] // First 16 chars for brevity
}

// SearchKey generates the cache key for a search request fingerprint.
// Identical requests always map to the same key; changing any field
// produces a different key. NUL separators keep adjacent string fields
// from colliding.
func SearchKey(query, category, tone string, initialK, finalK int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(tone))
	h.Write([]byte{0})

	var ks [8]byte
	binary.BigEndian.PutUint32(ks[:4], uint32(initialK))
	binary.BigEndian.PutUint32(ks[4:], uint32(finalK))
	h.Write(ks[:])

	return "search:" + hex.EncodeToString(h.Sum(nil))[:16]
}

// EmbeddingKey generates the cache key for a query embedding. The model
// name is part of the key so switching models never serves stale vectors.
func EmbeddingKey(model, text string) string {
	return "embed:" + model + ":" + HashText(text)
}

// SimilarKey generates the cache key for a similar-books lookup.
func SimilarKey(isbn13 int64, finalK int) string {
	return "similar:" + strconv.FormatInt(isbn13, 10) + ":" + strconv.Itoa(finalK)
}
