// Package embedding defines the text embedding capability used by both
// indices, plus vector helpers shared by the collection implementations.
package embedding

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-length vector. Identical input must give
// identical output.
type Embedder interface {
	// Name identifies the implementation in logs and cache keys.
	Name() string
	// Dimension is the vector length, or 0 while unknown for remote models.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
