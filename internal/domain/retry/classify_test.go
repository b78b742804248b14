package retry

import (
	"errors"
	"fmt"
	"testing"
)

func TestKeywordClassifier_Retryable(t *testing.T) {
	t.Parallel()

	c := NewKeywordClassifier()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"plain network error", errors.New("connection refused"), true},
		{"http 500", errors.New("server error: 500"), true},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"forbidden", errors.New("403 Forbidden"), false},
		{"invalid api key", errors.New("invalid API key"), false},
		{"auth failure", errors.New("authentication failed"), false},
		{"rate limit", errors.New("rate limit exceeded"), false},
		{"quota", errors.New("monthly quota exhausted"), false},
		{"mixed case", errors.New("RATE LIMIT hit"), false},
		{"wrapped auth", fmt.Errorf("calling stats API: %w", errors.New("unauthorized")), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestExplicitWrappersOverrideKeywords(t *testing.T) {
	t.Parallel()

	c := NewKeywordClassifier()

	// Retryable() forces a retry even when the text matches auth keywords.
	forced := Retryable(errors.New("key rotation in progress"))
	if !c.Retryable(forced) {
		t.Error("Retryable-wrapped error should be retried")
	}

	// Fatal() suppresses retry even for innocuous text.
	fatal := Fatal(errors.New("connection refused"))
	if c.Retryable(fatal) {
		t.Error("Fatal-wrapped error should not be retried")
	}
	if !IsFatal(fatal) {
		t.Error("IsFatal() should detect Fatal-wrapped errors")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("IsFatal() should be false for unwrapped errors")
	}
}

func TestWrappersPreserveUnderlyingError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	if got := Fatal(base).Error(); got != "boom" {
		t.Errorf("Fatal error text = %q, want %q", got, "boom")
	}
	if !errors.Is(Fatal(base), base) {
		t.Error("Fatal should wrap the underlying error")
	}
	if !errors.Is(Retryable(base), base) {
		t.Error("Retryable should wrap the underlying error")
	}
	if Fatal(nil) != nil || Retryable(nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}
