package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Operation is a single unit of retryable work. It must be safe to
// invoke repeatedly; the executor assumes idempotence but does not
// verify it.
type Operation func(ctx context.Context) error

// Executor runs operations under a Policy with exponential backoff.
// It retries transient failures, surfaces fatal failures immediately,
// and suspends only at the delay points between attempts.
type Executor struct {
	policy     Policy
	classifier Classifier
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor for the given policy.
// A nil classifier defaults to KeywordClassifier.
func NewExecutor(policy Policy, classifier Classifier, logger *slog.Logger) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policy:     policy,
		classifier: classifier,
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

// Do runs op under the executor's policy. The label is used only for
// log records (e.g. a provider or endpoint name).
//
// On success it returns nil. If every attempt fails, it returns the
// last error unmodified; callers inspect the original failure, not a
// synthetic exhaustion error.
func (e *Executor) Do(ctx context.Context, label string, op Operation) error {
	var lastErr error

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, ErrTimeout) && !e.policy.RetryTimeouts {
			e.logger.Warn("attempt timed out, not retrying",
				"op", label,
				"attempt", attempt+1,
				"error", lastErr,
			)
			return lastErr
		}

		if !e.classifier.Retryable(lastErr) {
			e.logger.Warn("fatal error, not retrying",
				"op", label,
				"attempt", attempt+1,
				"error", lastErr,
			)
			return lastErr
		}

		// No sleep after the final attempt.
		if attempt == e.policy.MaxAttempts-1 {
			break
		}

		delay := e.policy.Delay(attempt)
		e.logger.Info("retrying after failure",
			"op", label,
			"attempt", attempt+1,
			"max_attempts", e.policy.MaxAttempts,
			"delay", delay,
			"error", lastErr,
		)

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	e.logger.Error("all attempts exhausted",
		"op", label,
		"attempts", e.policy.MaxAttempts,
		"error", lastErr,
	)
	return lastErr
}

// Do runs op once per attempt under policy and returns its result.
// Generic companion to Executor.Do for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// sleepCtx suspends for d, waking early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
