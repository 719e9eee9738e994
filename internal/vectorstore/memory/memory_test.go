package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
)

func rec(id, course string, lesson int, v ...float64) vectorstore.Record {
	return vectorstore.Record{
		ID:       id,
		Vector:   v,
		Document: id,
		Metadata: vectorstore.Metadata{CourseTitle: course, LessonNumber: domain.IntPtr(lesson)},
	}
}

func ids(matches []vectorstore.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Record.ID
	}
	return out
}

func TestQuery_EmptyCollection(t *testing.T) {
	c := NewCollection()
	got, err := c.Query(context.Background(), []float64{1, 0}, vectorstore.Query{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_RanksAndLimits(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{
		rec("far", "A", 1, 0, 1),
		rec("near", "A", 1, 1, 0),
		rec("mid", "A", 1, 1, 1),
	}))

	got, err := c.Query(ctx, []float64{1, 0}, vectorstore.Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid"}, ids(got))
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestQuery_MinScore(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{
		rec("far", "A", 1, 0, 1),
		rec("near", "A", 1, 1, 0),
		rec("mid", "A", 1, 1, 1),
	}))

	got, err := c.Query(ctx, []float64{1, 0}, vectorstore.Query{Limit: 5, MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid"}, ids(got))
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{
		rec("first", "A", 1, 1, 0),
		rec("second", "B", 1, 2, 0),
		rec("third", "C", 1, 3, 0),
	}))
	got, err := c.Query(ctx, []float64{1, 0}, vectorstore.Query{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids(got))
}

// A post-filter over the global top-k would return nothing here because the
// best matches all belong to another course.
func TestQuery_FilterAppliedBeforeRanking(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	var records []vectorstore.Record
	for i := 0; i < 10; i++ {
		records = append(records, rec(string(rune('a'+i)), "Popular", 1, 1, 0))
	}
	records = append(records, rec("only-b", "Niche", 3, 0, 1))
	require.NoError(t, c.Upsert(ctx, records))

	got, err := c.Query(ctx, []float64{1, 0}, vectorstore.Query{Limit: 2, Filter: domain.Filter{CourseTitle: "Niche"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"only-b"}, ids(got))

	got, err = c.Query(ctx, []float64{1, 0}, vectorstore.Query{Filter: domain.Filter{CourseTitle: "Niche", LessonNumber: domain.IntPtr(4)}})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.Query(ctx, []float64{1, 0}, vectorstore.Query{Filter: domain.Filter{CourseTitle: "Unknown"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsert_ReplacesInPlace(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{rec("x", "A", 1, 1, 0), rec("y", "A", 2, 0, 1)}))
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{rec("x", "A", 5, 0, 1)}))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", all[0].ID)
	assert.Equal(t, 5, *all[0].Metadata.LessonNumber)

	r, ok, err := c.Get(ctx, "y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", r.Document)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsert_DimensionMismatchRejectsWholeBatch(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{rec("x", "A", 1, 1, 0)}))
	err := c.Upsert(ctx, []vectorstore.Record{rec("y", "A", 1, 1, 0), rec("z", "A", 1, 1, 0, 0)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	n, _ := c.Count(ctx)
	assert.Equal(t, 1, n)

	_, err = c.Query(ctx, []float64{1, 0, 0}, vectorstore.Query{})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestClear(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{rec("x", "A", 1, 1, 0)}))
	require.NoError(t, c.Clear(ctx))
	n, _ := c.Count(ctx)
	assert.Zero(t, n)
	// dimension resets with the data
	require.NoError(t, c.Upsert(ctx, []vectorstore.Record{rec("x", "A", 1, 1, 0, 0)}))
}

func TestConcurrentReadersSeeWholeBatches(t *testing.T) {
	c := NewCollection()
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			batch := []vectorstore.Record{
				rec(string(rune('a'+i%26))+"1", "A", i, 1, 0),
				rec(string(rune('a'+i%26))+"2", "A", i, 1, 0),
			}
			assert.NoError(t, c.Upsert(ctx, batch))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			n, err := c.Count(ctx)
			assert.NoError(t, err)
			assert.Zero(t, n%2, "observed a partial batch")
		}
	}()
	wg.Wait()
}
