// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanranft/statguard/internal/domain/ratelimit"
)

// SlidingWindowLimiter implements ratelimit.Limiter with a per-key
// ordered timestamp window. Thread-safe for concurrent access.
// Includes background cleanup to prevent unbounded memory growth
// for keys that stop sending requests.
type SlidingWindowLimiter struct {
	windows         map[string][]time.Time
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
	now             func() time.Time
}

// NewSlidingWindowLimiter creates a limiter with default cleanup settings.
// Default cleanup interval: 5 minutes, default maxTTL: 1 hour.
func NewSlidingWindowLimiter() *SlidingWindowLimiter {
	return NewSlidingWindowLimiterWithConfig(5*time.Minute, 1*time.Hour)
}

// NewSlidingWindowLimiterWithConfig creates a limiter with custom cleanup settings.
// cleanupInterval: how often to run cleanup.
// maxTTL: maximum age of a key's newest entry before the key is removed.
func NewSlidingWindowLimiterWithConfig(cleanupInterval, maxTTL time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:         make(map[string][]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
		now:             time.Now,
	}
}

// Allow checks if a request is admitted under the given config.
//
// Entries older than the window are pruned lazily during the check, so
// a key never holds more than MaxRequests live entries after pruning.
// The timestamp is recorded only on admission; denied requests do not
// extend the window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, config ratelimit.Config) (ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}

	now := l.now()
	cutoff := now.Add(-config.Window)

	// Lazy prune: drop entries that fell out of the trailing window.
	// Timestamps are appended in order, so the live suffix starts at
	// the first entry after the cutoff.
	window := l.windows[key]
	live := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= config.MaxRequests {
		// Denied: the slot frees when the oldest live entry expires.
		retryAfter := live[0].Add(config.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.windows[key] = live
		return ratelimit.Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter,
		}, nil
	}

	live = append(live, now)
	l.windows[key] = live

	return ratelimit.Result{
		Allowed:   true,
		Remaining: config.MaxRequests - len(live),
	}, nil
}

// StartCleanup starts the background cleanup goroutine.
// The goroutine periodically removes keys whose newest entry is older
// than maxTTL. It stops when ctx is cancelled or Stop() is called.
func (l *SlidingWindowLimiter) StartCleanup(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}

// cleanup removes keys whose newest entry is older than maxTTL.
func (l *SlidingWindowLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.maxTTL)
	cleaned := 0

	for key, window := range l.windows {
		if len(window) == 0 || window[len(window)-1].Before(cutoff) {
			delete(l.windows, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(l.windows))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *SlidingWindowLimiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the current number of tracked keys.
// Useful for testing and monitoring memory usage.
func (l *SlidingWindowLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*SlidingWindowLimiter)(nil)
