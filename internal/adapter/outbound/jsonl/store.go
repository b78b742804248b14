// Package jsonl persists security events as JSON Lines files with
// daily rotation, a size cap per file, retention cleanup, and a small
// in-memory ring of recent events.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ryanranft/statguard/internal/domain/audit"
)

// filePattern matches event log filenames: events-YYYY-MM-DD.jsonl or
// events-YYYY-MM-DD-N.jsonl for size-rotated segments.
var filePattern = regexp.MustCompile(`^events-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

// Config holds tunables for the JSONL event store.
type Config struct {
	// Dir is the directory event files are written to.
	Dir string
	// RetentionDays is how many days of files to keep (default 30).
	RetentionDays int
	// MaxFileMB caps a single file before size rotation (default 100).
	MaxFileMB int
	// CacheSize is how many recent events to keep in memory (default 512).
	CacheSize int
}

// Store implements audit.Store on top of rotated JSON Lines files.
// One event per line; files rotate at midnight UTC and at the size cap.
type Store struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	logger        *slog.Logger
	cancel        context.CancelFunc

	mu      sync.Mutex
	file    *os.File
	date    string
	size    int64
	segment int
	closed  bool

	recent *ring
}

// Open creates the directory if needed, opens today's event file,
// prunes expired files, warms the recent-events ring from the newest
// file on disk, and starts the hourly retention goroutine.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileMB <= 0 {
		cfg.MaxFileMB = 100
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create event directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		cancel:        cancel,
		recent:        newRing(cfg.CacheSize),
	}

	today := time.Now().UTC().Format(time.DateOnly)
	if err := s.openSegment(today, s.highestSegment(today)); err != nil {
		cancel()
		return nil, err
	}
	s.date = today

	s.prune()
	s.warmCache()
	go s.retentionLoop(ctx)

	return s, nil
}

// Append writes events as JSON lines, rotating by date and size.
func (s *Store) Append(_ context.Context, events ...audit.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("event store is closed")
	}

	for _, event := range events {
		day := event.Timestamp.UTC().Format(time.DateOnly)
		if day != s.date {
			if err := s.rotateLocked(day, 0); err != nil {
				return err
			}
			s.date = day
		}
		if s.size >= s.maxFileSize {
			if err := s.rotateLocked(s.date, s.segment+1); err != nil {
				return err
			}
		}

		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		n, err := s.file.Write(append(line, '\n'))
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		s.size += int64(n)
		s.recent.add(event)
	}
	return nil
}

// Flush syncs the current file to disk.
func (s *Store) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close stops the retention goroutine and closes the current file.
// Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	if s.file != nil {
		_ = s.file.Sync()
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Recent returns up to n of the most recently appended events, newest
// first, served from the in-memory ring.
func (s *Store) Recent(n int) []audit.SecurityEvent {
	return s.recent.newest(n)
}

// rotateLocked closes the current file and opens the segment for the
// given day. Must be called with s.mu held.
func (s *Store) rotateLocked(day string, segment int) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	return s.openSegment(day, segment)
}

// openSegment opens or creates the event file for a day and segment
// number and records its current size.
func (s *Store) openSegment(day string, segment int) error {
	path := filepath.Join(s.dir, segmentName(day, segment))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open event file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat event file: %w", err)
	}
	s.file = f
	s.size = info.Size()
	s.segment = segment
	return nil
}

func segmentName(day string, segment int) string {
	if segment == 0 {
		return fmt.Sprintf("events-%s.jsonl", day)
	}
	return fmt.Sprintf("events-%s-%d.jsonl", day, segment)
}

// highestSegment returns the largest existing segment number for a
// day, so appends continue the newest file after a restart.
func (s *Store) highestSegment(day string) int {
	highest := 0
	for _, f := range s.listFiles() {
		if f.day == day && f.segment > highest {
			highest = f.segment
		}
	}
	return highest
}

type segmentInfo struct {
	name    string
	day     string
	segment int
}

// listFiles returns the event files in the directory, unsorted.
func (s *Store) listFiles() []segmentInfo {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var files []segmentInfo
	for _, e := range entries {
		m := filePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		info := segmentInfo{name: e.Name(), day: m[1]}
		if m[2] != "" {
			info.segment, _ = strconv.Atoi(m[2])
		}
		files = append(files, info)
	}
	return files
}

// prune deletes event files older than the retention window.
func (s *Store) prune() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, f := range s.listFiles() {
		day, err := time.Parse(time.DateOnly, f.day)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			s.logger.Error("failed to delete expired event file",
				"file", f.name, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("event retention pruned files", "deleted", deleted)
	}
}

// retentionLoop prunes hourly until the store is closed.
func (s *Store) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

// warmCache fills the recent-events ring from the newest non-empty
// file so restarts keep recent history visible. Malformed lines are
// skipped; partial trailing writes after a crash must not poison the
// ring.
func (s *Store) warmCache() {
	name := s.newestFile()
	if name == "" {
		return
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		s.logger.Error("failed to open event file for cache warmup",
			"file", name, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var events []audit.SecurityEvent
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event audit.SecurityEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			s.logger.Warn("skipping malformed event line",
				"file", name, "error", err)
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("error reading event file", "file", name, "error", err)
	}

	if len(events) > s.recent.cap {
		events = events[len(events)-s.recent.cap:]
	}
	for _, event := range events {
		s.recent.add(event)
	}
}

// newestFile returns the most recent non-empty event file, or "".
func (s *Store) newestFile() string {
	files := s.listFiles()
	sort.Slice(files, func(i, j int) bool {
		if files[i].day != files[j].day {
			return files[i].day < files[j].day
		}
		return files[i].segment < files[j].segment
	})
	for i := len(files) - 1; i >= 0; i-- {
		info, err := os.Stat(filepath.Join(s.dir, files[i].name))
		if err == nil && info.Size() > 0 {
			return files[i].name
		}
	}
	return ""
}

var _ audit.Store = (*Store)(nil)

// ring is a fixed-capacity buffer of recent events.
type ring struct {
	mu      sync.RWMutex
	entries []audit.SecurityEvent
	cap     int
	head    int
	count   int
}

func newRing(capacity int) *ring {
	return &ring{
		entries: make([]audit.SecurityEvent, capacity),
		cap:     capacity,
	}
}

func (r *ring) add(event audit.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = event
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// newest returns up to n events, most recent first.
func (r *ring) newest(n int) []audit.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]audit.SecurityEvent, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[(r.head-1-i+r.cap)%r.cap]
	}
	return out
}
