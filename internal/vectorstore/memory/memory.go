// Package memory is an in-process Collection using brute-force cosine
// similarity.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"courserag/internal/embedding"
	"courserag/internal/vectorstore"
)

// Collection keeps records in insertion order. A batch upsert happens under
// one write lock, so readers see all of it or none of it.
type Collection struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	index     map[string]int
}

func NewCollection() *Collection {
	return &Collection{index: make(map[string]int)}
}

func (c *Collection) Upsert(_ context.Context, records []vectorstore.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dim := c.dimension
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d, want %d", vectorstore.ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
	}
	c.dimension = dim
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		if i, ok := c.index[r.ID]; ok {
			c.records[i] = r
			continue
		}
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return nil
}

func (c *Collection) Query(_ context.Context, vector []float64, q vectorstore.Query) ([]vectorstore.Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return nil, nil
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), c.dimension)
	}
	matches := make([]vectorstore.Match, 0, len(c.records))
	for _, r := range c.records {
		if !vectorstore.Matches(q.Filter, r.Metadata) {
			continue
		}
		score := embedding.Cosine(r.Vector, vector)
		if q.MinScore > 0 && score < q.MinScore {
			continue
		}
		matches = append(matches, vectorstore.Match{Record: r, Score: score})
	}
	// stable: equal scores keep insertion order
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (c *Collection) Get(_ context.Context, id string) (vectorstore.Record, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return vectorstore.Record{}, false, nil
	}
	return c.records[i], true, nil
}

func (c *Collection) List(_ context.Context) ([]vectorstore.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records), nil
}

func (c *Collection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

func (c *Collection) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dimension = 0
	c.records = nil
	c.index = make(map[string]int)
	return nil
}
