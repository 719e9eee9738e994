// Package hashing implements a local, deterministic embedder. Each term from
// the tokenizer is hashed into one of Dimension buckets; bucket weights are
// log-scaled term counts and the vector is L2-normalized. No corpus pass is
// needed, so catalog and content vectors stay comparable as courses are added.
package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"courserag/internal/embedding"
	"courserag/internal/tokenizer"
)

const DefaultDimension = 4096

type Embedder struct {
	dimension int
}

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) Name() string { return "hashing" }

func (e *Embedder) Dimension() int { return e.dimension }

// Embed never fails; text without terms maps to the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimension)
	counts := make(map[int]int)
	for _, term := range tokenizer.Terms(text) {
		counts[e.bucket(term)]++
	}
	for idx, n := range counts {
		vec[idx] = 1 + math.Log(float64(n))
	}
	return embedding.Normalize(vec), nil
}

func (e *Embedder) bucket(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(e.dimension))
}
