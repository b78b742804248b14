package ratelimit

import "context"

// Limiter is the interface for admission checks.
//
// Implementations use a trailing-window count: a request is admitted
// when fewer than Config.MaxRequests requests have been admitted for
// the key within the last Config.Window, and its timestamp is recorded
// only on admission. Check-then-record must be atomic per key so
// concurrent callers cannot over-admit.
//
// The interface is storage-agnostic; the in-memory implementation
// lives in the memory adapter package.
type Limiter interface {
	// Allow checks if a request identified by key is admitted under
	// the given config. The key should be a structured identifier
	// created by FormatKey.
	//
	// If the request is denied, RetryAfter in the result indicates
	// when the oldest in-window entry expires.
	Allow(ctx context.Context, key string, config Config) (Result, error)
}
