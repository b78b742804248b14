// Package guard composes the rate limiter, validators, and timeout
// enforcement into a single admission chain for request parameters.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanranft/statguard/internal/domain/retry"
)

// TimeoutError signals that an operation exceeded its wall-clock bound.
// It is distinct from the operation's own failure modes and unwraps to
// retry.ErrTimeout so the retry executor recognizes it.
type TimeoutError struct {
	// Op labels the operation that timed out.
	Op string
	// Limit is the configured bound that was exceeded.
	Limit time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded %v timeout", e.Op, e.Limit)
}

// Unwrap ties TimeoutError into the retry taxonomy.
func (e *TimeoutError) Unwrap() error {
	return retry.ErrTimeout
}

// WithTimeout bounds the wall-clock duration of op. If the bound is
// exceeded, the derived context is cancelled and a *TimeoutError is
// returned; op's own result, arriving later, is discarded.
//
// op must observe ctx so cancellation triggers cleanup; an operation
// that ignores its context keeps running in the background until it
// returns on its own.
func WithTimeout(ctx context.Context, label string, limit time.Duration, op func(ctx context.Context) error) error {
	if limit <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// Buffered so the op goroutine never blocks on a departed reader.
	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not our bound.
			return ctx.Err()
		}
		return &TimeoutError{Op: label, Limit: limit}
	}
}
