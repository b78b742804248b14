// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/ryanranft/statguard/internal/domain/audit"
)

const defaultRecentCap = 1000

// MemoryAuditStore implements audit.Store writing JSON Lines to a
// writer. Also keeps a bounded in-memory ring buffer for recent event
// queries. Suitable for development and tests; production deployments
// use the SQLite store.
type MemoryAuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent events.
	recent []audit.SecurityEvent
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stderr.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStore(capacity ...int) *MemoryAuditStore {
	return NewAuditStoreWithWriter(os.Stderr, capacity...)
}

// NewAuditStoreWithWriter creates an audit store writing to the given writer.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *MemoryAuditStore {
	c := resolveCapacity(capacity...)
	return &MemoryAuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.SecurityEvent, 0, c),
		cap:     c,
	}
}

// Append stores events by writing them as JSON to the output and
// keeping them in the in-memory ring buffer.
func (s *MemoryAuditStore) Append(ctx context.Context, events ...audit.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if err := s.encoder.Encode(e); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			// Shift left, drop oldest.
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = e
		} else {
			s.recent = append(s.recent, e)
		}
	}
	return nil
}

// Flush forces pending events to storage.
// No-op for this implementation (no buffering).
func (s *MemoryAuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources.
func (s *MemoryAuditStore) Close() error {
	// Close file if it's not stdout/stderr.
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query retrieves events matching the filter from the ring buffer,
// newest first.
func (s *MemoryAuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result []audit.SecurityEvent
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.recent[i]
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		if filter.ClientID != "" && e.ClientID != filter.ClientID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		result = append(result, e)
	}

	return result, nil
}

// Compile-time interface verification.
var _ audit.Store = (*MemoryAuditStore)(nil)
var _ audit.QueryStore = (*MemoryAuditStore)(nil)
