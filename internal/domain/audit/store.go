package audit

import (
	"context"
	"time"

	"github.com/ryanranft/statguard/internal/domain/validation"
)

// Store persists security events. Implementations are explicitly
// constructed at process start and closed at shutdown; there is no
// package-level default sink.
type Store interface {
	// Append stores events. Must be cheap from the caller's perspective.
	Append(ctx context.Context, events ...SecurityEvent) error

	// Flush forces pending events to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Filter specifies query parameters for event queries.
type Filter struct {
	// StartTime is the beginning of the time range.
	StartTime time.Time
	// EndTime is the end of the time range.
	EndTime time.Time
	// ClientID filters by client (optional).
	ClientID string
	// Kind filters by event kind (optional).
	Kind validation.Kind
	// Limit is the maximum number of events to return (default 100).
	Limit int
}

// QueryStore provides read access to stored events.
// Separate from Store, which handles the write path.
type QueryStore interface {
	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]SecurityEvent, error)
}
