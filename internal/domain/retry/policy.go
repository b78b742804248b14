// Package retry provides exponential-backoff retry for outbound provider calls.
package retry

import (
	"errors"
	"fmt"
	"time"
)

// Default policy parameters, applied by DefaultPolicy.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = 1 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultMaxDelay      = 60 * time.Second
)

// Policy governs a single retry sequence. Immutable once constructed.
//
// MaxAttempts is the total number of invocations, not the number of
// retries: MaxAttempts=1 means exactly one attempt and no retry.
type Policy struct {
	// MaxAttempts is the maximum number of times the operation is invoked.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay after each attempt. Must be > 1.
	BackoffFactor float64

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// RetryTimeouts controls whether a timed-out attempt is retried.
	// Default false: a timeout is fatal to the sequence and surfaces
	// to the caller immediately.
	RetryTimeouts bool
}

// DefaultPolicy returns a Policy with the default parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		BackoffFactor: DefaultBackoffFactor,
		MaxDelay:      DefaultMaxDelay,
	}
}

// Validate checks that the policy parameters are usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %v", p.InitialDelay)
	}
	if p.BackoffFactor <= 1 {
		return fmt.Errorf("backoff factor must be > 1, got %v", p.BackoffFactor)
	}
	if p.MaxDelay <= 0 {
		return fmt.Errorf("max delay must be positive, got %v", p.MaxDelay)
	}
	return nil
}

// Delay returns the delay to apply after the given zero-based attempt.
// Formula: min(initial * factor^attempt, max). The sequence is
// monotonically non-decreasing and never exceeds MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ErrTimeout is the sentinel wrapped by timeout failures so the executor
// can recognize them across packages without an import cycle.
var ErrTimeout = errors.New("operation timed out")
