// Package integration exercises the full admission path: guard chain,
// real validators, CEL rules, the sliding-window limiter, and SQLite
// audit persistence wired together the way the serve command wires them.
package integration

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ryanranft/statguard/internal/adapter/outbound/cel"
	"github.com/ryanranft/statguard/internal/adapter/outbound/memory"
	"github.com/ryanranft/statguard/internal/adapter/outbound/sqlite"
	"github.com/ryanranft/statguard/internal/domain/audit"
	"github.com/ryanranft/statguard/internal/domain/guard"
	"github.com/ryanranft/statguard/internal/domain/ratelimit"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildGuard wires a guard the way the serve command does, backed by a
// SQLite audit store in a temp directory.
func buildGuard(t *testing.T, maxRequests int, window time.Duration) (*guard.Guard, *sqlite.AuditStore) {
	t.Helper()
	logger := discardLogger()

	limiter := memory.NewSlidingWindowLimiter()
	t.Cleanup(limiter.Stop)

	rules, err := cel.NewRuleValidator([]validation.Rule{
		{Name: "season-shape", Expr: `param.matches("^[0-9]{4}-[0-9]{2}$")`, Params: []string{"season"}},
	})
	if err != nil {
		t.Fatalf("compiling rules: %v", err)
	}

	store, err := sqlite.Open(sqlite.Config{
		Path: filepath.Join(t.TempDir(), "audit.db"),
	}, logger)
	if err != nil {
		t.Fatalf("opening audit store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	g, err := guard.New(guard.Config{
		RateLimit: ratelimit.Config{
			MaxRequests: maxRequests,
			Window:      window,
		},
		CheckTimeout: 5 * time.Second,
		PathParams:   []string{"export_path"},
	}, limiter, t.TempDir(), rules, store, logger)
	if err != nil {
		t.Fatalf("creating guard: %v", err)
	}
	return g, store
}

func TestAdmission_CleanRequestFlowsThrough(t *testing.T) {
	g, store := buildGuard(t, 100, time.Minute)
	ctx := context.Background()

	decision, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params: map[string]string{
			"player_id": "2544",
			"season":    "2025-26",
		},
	})
	if err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
	if !decision.Allowed {
		t.Fatalf("Allowed = false (%+v), want true", decision)
	}

	// Clean admissions leave no audit trail.
	events, err := store.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("audit events = %d, want 0 for admitted request", len(events))
	}
}

func TestAdmission_InjectionDenialIsAudited(t *testing.T) {
	g, store := buildGuard(t, 100, time.Minute)
	ctx := context.Background()

	decision, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params: map[string]string{
			"player_name": "jordan'; DROP TABLE players; --",
		},
	})
	if err != nil {
		t.Fatalf("Admit() = %v, want nil (denial is a Decision, not an error)", err)
	}
	if decision.Allowed {
		t.Fatal("Allowed = true, want denial for injection payload")
	}
	if decision.Reason != validation.KindSQLInjection {
		t.Errorf("Reason = %s, want %s", decision.Reason, validation.KindSQLInjection)
	}

	events, err := store.Query(ctx, audit.Filter{Kind: validation.KindSQLInjection})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].ClientID != "scout-7" {
		t.Errorf("event ClientID = %q, want scout-7", events[0].ClientID)
	}
	if events[0].Params["player_name"] == "" {
		t.Error("event should carry the offending parameter")
	}
}

func TestAdmission_TraversalDenialIsAudited(t *testing.T) {
	g, store := buildGuard(t, 100, time.Minute)
	ctx := context.Background()

	decision, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params: map[string]string{
			"export_path": "../../etc/passwd",
		},
	})
	if err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
	if decision.Reason != validation.KindPathTraversal {
		t.Errorf("Reason = %s, want %s", decision.Reason, validation.KindPathTraversal)
	}

	events, err := store.Query(ctx, audit.Filter{Kind: validation.KindPathTraversal})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("audit events = %d, want 1", len(events))
	}
}

func TestAdmission_CustomRuleDenial(t *testing.T) {
	g, _ := buildGuard(t, 100, time.Minute)
	ctx := context.Background()

	decision, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params:   map[string]string{"season": "201819"},
	})
	if err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
	if decision.Allowed {
		t.Fatal("Allowed = true, want rule denial for malformed season")
	}
	if decision.Reason != validation.KindRuleViolation {
		t.Errorf("Reason = %s, want %s", decision.Reason, validation.KindRuleViolation)
	}
	if decision.Rule != "season-shape" {
		t.Errorf("Rule = %q, want season-shape", decision.Rule)
	}
}

func TestAdmission_RateLimitAfterBudgetExhausted(t *testing.T) {
	g, store := buildGuard(t, 3, time.Minute)
	ctx := context.Background()

	req := &guard.Request{
		ClientID: "scout-7",
		Params:   map[string]string{"player_id": "2544"},
	}

	for i := 0; i < 3; i++ {
		decision, err := g.Admit(ctx, req)
		if err != nil {
			t.Fatalf("Admit() #%d = %v, want nil", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	decision, err := g.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
	if decision.Allowed {
		t.Fatal("4th request should be rate limited")
	}
	if decision.Reason != validation.KindRateLimited {
		t.Errorf("Reason = %s, want %s", decision.Reason, validation.KindRateLimited)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within the window", decision.RetryAfter)
	}

	events, err := store.Query(ctx, audit.Filter{Kind: validation.KindRateLimited})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("rate limit audit events = %d, want 1", len(events))
	}
}

func TestAdmission_ClientsHaveIndependentBudgets(t *testing.T) {
	g, _ := buildGuard(t, 1, time.Minute)
	ctx := context.Background()
	params := map[string]string{"player_id": "2544"}

	if d, err := g.Admit(ctx, &guard.Request{ClientID: "scout-7", Params: params}); err != nil || !d.Allowed {
		t.Fatalf("first client first request: decision=%+v err=%v", d, err)
	}
	if d, err := g.Admit(ctx, &guard.Request{ClientID: "scout-8", Params: params}); err != nil || !d.Allowed {
		t.Errorf("second client should have its own budget: decision=%+v err=%v", d, err)
	}
	if d, err := g.Admit(ctx, &guard.Request{ClientID: "scout-7", Params: params}); err != nil || d.Allowed {
		t.Errorf("first client should be exhausted: decision=%+v err=%v", d, err)
	}
}

func TestAdmission_DenialDoesNotConsumeBudget(t *testing.T) {
	g, _ := buildGuard(t, 1, time.Minute)
	ctx := context.Background()

	// A validation denial happens before the limiter and must not
	// consume the single window slot.
	if d, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params:   map[string]string{"q": "1; DROP TABLE players"},
	}); err != nil || d.Allowed {
		t.Fatalf("injection should be denied: decision=%+v err=%v", d, err)
	}

	d, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params:   map[string]string{"player_id": "2544"},
	})
	if err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
	if !d.Allowed {
		t.Error("clean request should still fit in the window after a rejected one")
	}
}

func TestAdmission_AuditSurvivesReopen(t *testing.T) {
	logger := discardLogger()
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	limiter := memory.NewSlidingWindowLimiter()
	defer limiter.Stop()

	store, err := sqlite.Open(sqlite.Config{Path: dbPath}, logger)
	if err != nil {
		t.Fatalf("opening audit store: %v", err)
	}

	g, err := guard.New(guard.Config{
		RateLimit:    ratelimit.Config{MaxRequests: 100, Window: time.Minute},
		CheckTimeout: 5 * time.Second,
	}, limiter, t.TempDir(), nil, store, logger)
	if err != nil {
		t.Fatalf("creating guard: %v", err)
	}

	if _, err := g.Admit(ctx, &guard.Request{
		ClientID: "scout-7",
		Params:   map[string]string{"q": "' OR '1'='1"},
	}); err != nil {
		t.Fatalf("Admit() = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	reopened, err := sqlite.Open(sqlite.Config{Path: dbPath}, logger)
	if err != nil {
		t.Fatalf("reopening audit store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	events, err := reopened.Query(ctx, audit.Filter{ClientID: "scout-7"})
	if err != nil {
		t.Fatalf("Query() = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events after reopen = %d, want 1", len(events))
	}
}
