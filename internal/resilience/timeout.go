package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courserag/internal/logger"
)

// TimeoutError is an operation that ran past its limit. It unwraps to
// context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s took longer than %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout bounds fn to limit and returns as soon as either finishes. An
// fn that ignores its context is left to finish in the background and its
// result is dropped. A zero limit runs fn inline. Cancellation of ctx itself
// is reported as such, not as a TimeoutError.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()

	var err error
	select {
	case err = <-done:
		if err == nil || !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return err
		}
	case <-bounded.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	logger.FromContext(ctx).Debug("operation hit its time limit", "component", "timeout", "operation", op, "limit", limit)
	return &TimeoutError{Op: op, Limit: limit}
}
