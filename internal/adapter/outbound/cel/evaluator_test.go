package cel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ryanranft/statguard/internal/domain/validation"
)

func TestRuleValidator_Evaluate(t *testing.T) {
	t.Parallel()

	v, err := NewRuleValidator([]validation.Rule{
		{Name: "season-shape", Expr: `param.matches("^[0-9]{4}-[0-9]{2}$")`, Params: []string{"season"}},
		{Name: "short-param", Expr: `size(param) < 32`},
	})
	if err != nil {
		t.Fatalf("NewRuleValidator() error: %v", err)
	}
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}

	ctx := context.Background()

	// Well-formed season passes both rules.
	if err := v.Validate(ctx, "scout-7", "season", "2025-26"); err != nil {
		t.Errorf("Validate(season=2025-26) = %v, want nil", err)
	}

	// Malformed season fails the scoped rule.
	err = v.Validate(ctx, "scout-7", "season", "not-a-season")
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate(season=not-a-season) error type = %T, want *ValidationError", err)
	}
	if verr.Kind != validation.KindRuleViolation {
		t.Errorf("Kind = %s, want %s", verr.Kind, validation.KindRuleViolation)
	}
	if verr.Rule != "season-shape" {
		t.Errorf("Rule = %q, want season-shape", verr.Rule)
	}

	// The season rule does not cover other parameters.
	if err := v.Validate(ctx, "scout-7", "player_id", "2544"); err != nil {
		t.Errorf("Validate(player_id) = %v, want nil (season rule is scoped)", err)
	}

	// The unscoped length rule covers every parameter.
	err = v.Validate(ctx, "scout-7", "player_id", strings.Repeat("9", 64))
	if !errors.As(err, &verr) || verr.Rule != "short-param" {
		t.Errorf("oversized param: got %v, want short-param rejection", err)
	}
}

func TestRuleValidator_ClientVariable(t *testing.T) {
	t.Parallel()

	v, err := NewRuleValidator([]validation.Rule{
		{Name: "trusted-only", Expr: `client.startsWith("internal-") || size(param) < 10`},
	})
	if err != nil {
		t.Fatalf("NewRuleValidator() error: %v", err)
	}

	ctx := context.Background()
	long := strings.Repeat("x", 20)

	if err := v.Validate(ctx, "internal-etl", "q", long); err != nil {
		t.Errorf("internal client should bypass the length bound: %v", err)
	}
	if err := v.Validate(ctx, "scout-7", "q", long); err == nil {
		t.Error("external client should hit the length bound")
	}
}

func TestNewRuleValidator_RejectsBadRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		rules []validation.Rule
	}{
		{"empty expression", []validation.Rule{{Name: "x", Expr: ""}}},
		{"unparseable", []validation.Rule{{Name: "x", Expr: "param ==="}}},
		{"unknown variable", []validation.Rule{{Name: "x", Expr: "nonexistent == 1"}}},
		{"oversized", []validation.Rule{{Name: "x", Expr: "param == \"" + strings.Repeat("a", 2000) + "\""}}},
		{"too deeply nested", []validation.Rule{{Name: "x", Expr: strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60)}}},
		{"duplicate", []validation.Rule{
			{Name: "x", Expr: "true"},
			{Name: "x", Expr: "true"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewRuleValidator(tc.rules); err == nil {
				t.Errorf("NewRuleValidator() should reject %s", tc.name)
			}
		})
	}
}

func TestRuleValidator_NonBooleanExpression(t *testing.T) {
	t.Parallel()

	// size(param) compiles fine but yields an int at evaluation time.
	v, err := NewRuleValidator([]validation.Rule{{Name: "bad", Expr: "size(param)"}})
	if err != nil {
		t.Fatalf("NewRuleValidator() error: %v", err)
	}
	if err := v.Validate(context.Background(), "c", "k", "v"); err == nil {
		t.Error("non-boolean rule result should be an error")
	}
}

func TestRuleValidator_NoRules(t *testing.T) {
	t.Parallel()

	v, err := NewRuleValidator(nil)
	if err != nil {
		t.Fatalf("NewRuleValidator(nil) error: %v", err)
	}
	if err := v.Validate(context.Background(), "c", "k", "anything"); err != nil {
		t.Errorf("Validate() with no rules = %v, want nil", err)
	}
}
