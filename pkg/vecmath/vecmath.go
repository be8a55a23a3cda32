// Package vecmath provides float32 vector kernels for the in-memory
// retriever backend and ingest sanity checks.
package vecmath

import (
	"math"
)

// CosineSimilarity computes cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical, -1 = opposite, and 0
// for empty or zero-magnitude input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		// Use shorter length
		if len(a) > len(b) {
			a = a[:len(b)]
		} else {
			b = b[:len(a)]
		}
	}

	// Compute dot product and magnitudes in a single pass
	var dot, magA, magB float64
	n := len(a)

	// Process 4 elements at a time for better CPU pipelining
	i := 0
	for ; i <= n-4; i += 4 {
		dot += float64(a[i])*float64(b[i]) +
			float64(a[i+1])*float64(b[i+1]) +
			float64(a[i+2])*float64(b[i+2]) +
			float64(a[i+3])*float64(b[i+3])

		magA += float64(a[i])*float64(a[i]) +
			float64(a[i+1])*float64(a[i+1]) +
			float64(a[i+2])*float64(a[i+2]) +
			float64(a[i+3])*float64(a[i+3])

		magB += float64(b[i])*float64(b[i]) +
			float64(b[i+1])*float64(b[i+1]) +
			float64(b[i+2])*float64(b[i+2]) +
			float64(b[i+3])*float64(b[i+3])
	}

	// Handle remaining elements
	for ; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(magA * magB)
	if denom == 0 {
		return 0
	}

	similarity := dot / denom
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return similarity
}

// CosineDistance computes cosine distance (1 - similarity).
// Returns a value in [0, 2] where 0 = identical, 2 = opposite.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 2.0 // Maximum distance for empty input
	}
	return 1.0 - CosineSimilarity(a, b)
}

// DotProduct computes inner product between two float32 vectors.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var sum float64
	n := len(a)

	// Process 4 elements at a time
	i := 0
	for ; i <= n-4; i += 4 {
		sum += float64(a[i])*float64(b[i]) +
			float64(a[i+1])*float64(b[i+1]) +
			float64(a[i+2])*float64(b[i+2]) +
			float64(a[i+3])*float64(b[i+3])
	}

	for ; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// Magnitude returns the L2 norm of a vector.
func Magnitude(v []float32) float64 {
	return math.Sqrt(DotProduct(v, v))
}

// NormalizeInPlace normalizes a vector to unit length in-place.
// Zero-magnitude vectors are left unchanged.
func NormalizeInPlace(v []float32) {
	if len(v) == 0 {
		return
	}

	mag := Magnitude(v)
	if mag == 0 {
		return
	}

	invMag := float32(1.0 / mag)
	for i := range v {
		v[i] *= invMag
	}
}
