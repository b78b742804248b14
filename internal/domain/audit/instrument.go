package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ryanranft/statguard/internal/domain/retry"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

// Operation is any unit of work whose failures should be audited.
type Operation func(ctx context.Context) error

// Instrument returns an operation that records a SecurityEvent to the
// sink whenever op fails with a classifiable security error. The
// original error is returned unmodified either way.
//
// This is explicit wrapper composition: callers build instrumented
// operations at wiring time instead of relying on implicit global
// logging state.
func Instrument(op Operation, sink Store, clientID string) Operation {
	return func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}

		event, ok := EventFor(err, clientID)
		if !ok {
			return err
		}
		// Best effort: audit failures never mask the operation's error.
		_ = sink.Append(ctx, event)
		return err
	}
}

// EventFor builds a SecurityEvent for errors that carry a security
// classification. Plain errors produce no event.
func EventFor(err error, clientID string) (SecurityEvent, bool) {
	event := SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ClientID:  clientID,
		Detail:    err.Error(),
	}

	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		event.Kind = verr.Kind
		event.Rule = verr.Rule
		event.Detail = verr.Message
		return event, true
	}
	if errors.Is(err, retry.ErrTimeout) {
		event.Kind = validation.KindTimeout
		return event, true
	}
	return SecurityEvent{}, false
}
