package domain

import (
	"context"
	"errors"
)

var (
	// ErrMalformedDocument is returned when a document violates the header
	// or lesson grammar.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrEmptyDocument is returned when a document has no content at all.
	ErrEmptyDocument = errors.New("empty document")
	// ErrCourseNotFound is returned when a course hint matches no catalog entry.
	ErrCourseNotFound = errors.New("course not found")
	// ErrRetrievalTimeout is returned when a retrieval exceeds its deadline.
	ErrRetrievalTimeout = errors.New("retrieval timed out")
	// ErrDuplicateCourse marks a course that is already loaded. Ingestion
	// reports it and moves on.
	ErrDuplicateCourse = errors.New("course already loaded")
	ErrInvalidInput    = errors.New("invalid input")
)

// IsRetryable reports whether an operation failing with err may be retried.
// Only timeouts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetrievalTimeout) || errors.Is(err, context.DeadlineExceeded)
}
