// Package vectorstore defines a keyed vector collection. The catalog and
// content indices are two independent collections behind this interface.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"

	"courserag/internal/domain"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata is the filterable part of a record.
type Metadata struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	// Extra is an opaque payload returned with the record.
	Extra json.RawMessage `json:"extra,omitempty"`
}

// Record is one stored entry. ID is the key: writing an existing ID replaces
// the record in place and keeps its original insertion position.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float64 `json:"-"`
	Document string    `json:"document"`
	Metadata Metadata  `json:"metadata"`
}

// Query parameters. The filter is applied before ranking. MinScore, when
// positive, drops matches scoring below it.
type Query struct {
	Limit    int
	Filter   domain.Filter
	MinScore float64
}

type Match struct {
	Record Record
	Score  float64
}

// Collection is a keyed vector index. Implementations return matches in
// descending score order with ties in insertion order, and report an empty
// collection or an unmatched filter as no matches rather than an error.
type Collection interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float64, q Query) ([]Match, error)
	Get(ctx context.Context, id string) (Record, bool, error)
	// List returns all records in insertion order.
	List(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Matches reports whether md passes f. A lesson filter never matches a
// record without a lesson number.
func Matches(f domain.Filter, md Metadata) bool {
	if f.CourseTitle != "" && f.CourseTitle != md.CourseTitle {
		return false
	}
	if f.LessonNumber != nil && (md.LessonNumber == nil || *md.LessonNumber != *f.LessonNumber) {
		return false
	}
	return true
}
