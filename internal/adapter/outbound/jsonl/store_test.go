package jsonl

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ryanranft/statguard/internal/domain/audit"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(id string, ts time.Time) audit.SecurityEvent {
	return audit.SecurityEvent{
		ID:        id,
		Timestamp: ts,
		Kind:      validation.KindSQLInjection,
		ClientID:  "scout-7",
		Rule:      "statement-chaining",
		Detail:    "parameter contains SQL control structures",
		Params:    map[string]string{"q": "1; drop table players"},
	}
}

func TestStore_AppendAndRecent(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	now := time.Now().UTC()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, testEvent(id, now)); err != nil {
			t.Fatalf("Append(%s) = %v", id, err)
		}
	}

	recent := s.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d events", len(recent))
	}
	if recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("Recent(2) order = %s, %s; want c, b", recent[0].ID, recent[1].ID)
	}

	if got := s.Recent(10); len(got) != 3 {
		t.Errorf("Recent(10) returned %d events, want all 3", len(got))
	}
}

func TestStore_AppendAfterCloseFails(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	if err := s.Append(context.Background(), testEvent("a", time.Now())); err == nil {
		t.Error("Append() after Close() should fail")
	}
}

func TestStore_DateRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Config{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if err := s.Append(ctx, testEvent("old", yesterday)); err != nil {
		t.Fatalf("Append() = %v", err)
	}
	if err := s.Append(ctx, testEvent("new", time.Now().UTC())); err != nil {
		t.Fatalf("Append() = %v", err)
	}

	wantOld := segmentName(yesterday.Format(time.DateOnly), 0)
	wantNew := segmentName(time.Now().UTC().Format(time.DateOnly), 0)
	for _, name := range []string{wantOld, wantNew} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("expected file %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("file %s is empty", name)
		}
	}
}

func TestStore_WarmCacheAfterReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Config{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := s.Append(context.Background(), testEvent("persisted", time.Now().UTC())); err != nil {
		t.Fatalf("Append() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	reopened, err := Open(Config{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	recent := reopened.Recent(10)
	if len(recent) != 1 {
		t.Fatalf("Recent() after reopen = %d events, want 1", len(recent))
	}
	if recent[0].ID != "persisted" {
		t.Errorf("event ID = %q, want persisted", recent[0].ID)
	}
	if recent[0].Kind != validation.KindSQLInjection {
		t.Errorf("event Kind = %s, want %s", recent[0].Kind, validation.KindSQLInjection)
	}
}

func TestStore_WarmCacheSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	day := time.Now().UTC().Format(time.DateOnly)
	content := `{"id":"good","timestamp":"2026-08-30T12:00:00Z","kind":"timeout","client_id":"scout-7"}` +
		"\nnot json at all\n"
	if err := os.WriteFile(filepath.Join(dir, segmentName(day, 0)), []byte(content), 0600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	s, err := Open(Config{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	recent := s.Recent(10)
	if len(recent) != 1 {
		t.Fatalf("Recent() = %d events, want 1 (malformed line skipped)", len(recent))
	}
	if recent[0].ID != "good" {
		t.Errorf("event ID = %q, want good", recent[0].ID)
	}
}

func TestStore_PruneDeletesExpiredFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	oldDay := time.Now().UTC().AddDate(0, 0, -10).Format(time.DateOnly)
	oldPath := filepath.Join(dir, segmentName(oldDay, 0))
	if err := os.WriteFile(oldPath, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("seeding expired file: %v", err)
	}

	s, err := Open(Config{Dir: dir, RetentionDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expired file should be deleted at open, stat err = %v", err)
	}
}

func TestStore_SizeRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Config{Dir: dir, MaxFileMB: 1}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	event := testEvent("bulk", now)
	event.Detail = strings.Repeat("x", 64*1024)
	// 1 MiB cap with 64 KiB events forces at least one size rotation.
	for i := 0; i < 20; i++ {
		if err := s.Append(ctx, event); err != nil {
			t.Fatalf("Append() #%d = %v", i, err)
		}
	}

	day := now.Format(time.DateOnly)
	if _, err := os.Stat(filepath.Join(dir, segmentName(day, 1))); err != nil {
		t.Errorf("expected rotated segment %s: %v", segmentName(day, 1), err)
	}
}

func TestStore_ResumesNewestSegment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	day := time.Now().UTC().Format(time.DateOnly)
	for _, seg := range []int{0, 1, 2} {
		path := filepath.Join(dir, segmentName(day, seg))
		if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
			t.Fatalf("seeding segment %d: %v", seg, err)
		}
	}

	s, err := Open(Config{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer func() { _ = s.Close() }()

	if s.segment != 2 {
		t.Errorf("segment = %d, want 2 (append continues newest file)", s.segment)
	}
}
