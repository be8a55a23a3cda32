package vecmath

import (
	"math"
	"testing"
)

const epsilon = 1e-6

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"empty a", nil, []float32{1, 2}, 0.0},
		{"empty b", []float32{1, 2}, nil, 0.0},
		{"zero magnitude", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("CosineSimilarity() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_LongVectors(t *testing.T) {
	// More than 4 elements so the unrolled loop and the tail both run.
	a := make([]float32, 7)
	b := make([]float32, 7)
	for i := range a {
		a[i] = float32(i + 1)
		b[i] = float32(i + 1)
	}

	if got := CosineSimilarity(a, b); !almostEqual(got, 1.0) {
		t.Errorf("CosineSimilarity(identical 7-dim) = %v, expected 1.0", got)
	}
}

func TestCosineSimilarity_MismatchedLengths(t *testing.T) {
	// The longer vector is truncated to the shorter one.
	a := []float32{1, 0, 0, 0, 0}
	b := []float32{1, 0}

	if got := CosineSimilarity(a, b); !almostEqual(got, 1.0) {
		t.Errorf("CosineSimilarity(truncated) = %v, expected 1.0", got)
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	if got := CosineDistance(a, b); !almostEqual(got, 1.0) {
		t.Errorf("CosineDistance(orthogonal) = %v, expected 1.0", got)
	}
	if got := CosineDistance(a, a); !almostEqual(got, 0.0) {
		t.Errorf("CosineDistance(identical) = %v, expected 0.0", got)
	}
	if got := CosineDistance(nil, a); got != 2.0 {
		t.Errorf("CosineDistance(empty) = %v, expected 2.0", got)
	}
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{2, 2, 2, 2, 2}

	if got := DotProduct(a, b); !almostEqual(got, 30.0) {
		t.Errorf("DotProduct() = %v, expected 30.0", got)
	}
	if got := DotProduct(a, []float32{1, 2}); got != 0 {
		t.Errorf("DotProduct(mismatched) = %v, expected 0", got)
	}
	if got := DotProduct(nil, nil); got != 0 {
		t.Errorf("DotProduct(empty) = %v, expected 0", got)
	}
}

func TestMagnitude(t *testing.T) {
	if got := Magnitude([]float32{3, 4}); !almostEqual(got, 5.0) {
		t.Errorf("Magnitude([3,4]) = %v, expected 5.0", got)
	}
	if got := Magnitude(nil); got != 0 {
		t.Errorf("Magnitude(empty) = %v, expected 0", got)
	}
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)

	if got := Magnitude(v); !almostEqual(got, 1.0) {
		t.Errorf("Magnitude after normalize = %v, expected 1.0", got)
	}
	if !almostEqual(float64(v[0]), 0.6) || !almostEqual(float64(v[1]), 0.8) {
		t.Errorf("normalized vector = %v, expected [0.6 0.8]", v)
	}
}

func TestNormalizeInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeInPlace(v)

	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %v, expected 0 (zero vector unchanged)", i, x)
		}
	}
}

func TestNormalizeInPlace_Empty(t *testing.T) {
	NormalizeInPlace(nil) // must not panic
}
