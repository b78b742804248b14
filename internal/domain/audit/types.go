// Package audit contains domain types for security event logging.
package audit

import (
	"strings"
	"time"

	"github.com/ryanranft/statguard/internal/domain/validation"
)

// SecurityEvent is a single append-only audit record for a denied or
// failed request. Events are consumed by external log tooling; fields
// are flat and JSON-encodable.
type SecurityEvent struct {
	// ID is a unique event identifier for correlation.
	ID string `json:"id"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// Kind categorizes the event (rate_limited, sql_injection_suspected,
	// path_traversal_suspected, timeout, rule_violation).
	Kind validation.Kind `json:"kind"`
	// ClientID identifies the caller the event concerns.
	ClientID string `json:"client_id"`
	// Rule names the specific rule that fired, if any.
	Rule string `json:"rule,omitempty"`
	// Detail is a short human-readable summary.
	Detail string `json:"detail,omitempty"`
	// Params are the request parameters at the time of the event,
	// redacted via RedactSensitiveParams before storage.
	Params map[string]string `json:"params,omitempty"`
}

// sensitiveKeywords lists substrings that indicate a sensitive parameter key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// RedactSensitiveParams returns a copy of params with sensitive values
// masked. A key is considered sensitive if it contains any of the
// sensitiveKeywords (case-insensitive). Values are replaced with
// "***REDACTED***".
func RedactSensitiveParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return params
	}
	redacted := make(map[string]string, len(params))
	for k, v := range params {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
