package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Cosine returns dot(a,b) / (|a| * |b|).
// Vectors must have the same, non-zero length; shorter vectors are never zero-padded.
// A zero-norm input yields NaN, which IsSimilar treats as not similar.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return math.NaN(), nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// IsSimilar reports whether score meets threshold. NaN never does.
func IsSimilar(score, threshold float64) bool {
	return !math.IsNaN(score) && score >= threshold
}
