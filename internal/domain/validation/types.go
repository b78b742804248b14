// Package validation rejects request parameters matching known-dangerous
// shapes before they reach a downstream interpreter. It provides an
// allow-list-oriented SQL parameter validator, a root-confined path
// validator, and config-defined custom rules.
package validation

import "fmt"

// Kind categorizes the reason a parameter was rejected. Kinds double as
// audit event kinds and as reason codes for the HTTP layer.
type Kind string

const (
	// KindRateLimited indicates a trailing-window admission denial.
	KindRateLimited Kind = "rate_limited"

	// KindSQLInjection indicates a parameter matching SQL injection shapes.
	KindSQLInjection Kind = "sql_injection_suspected"

	// KindPathTraversal indicates a path escaping the configured root.
	KindPathTraversal Kind = "path_traversal_suspected"

	// KindTimeout indicates an operation exceeded its wall-clock bound.
	KindTimeout Kind = "timeout"

	// KindRuleViolation indicates a config-defined rule rejected the parameter.
	KindRuleViolation Kind = "rule_violation"
)

// ValidationError is a rejection verdict: the kind of violation, the
// specific rule that fired, and a safe client-facing message.
// The Message field MUST NOT contain internal details like file paths.
type ValidationError struct {
	// Kind is the violation category.
	Kind Kind

	// Rule names the specific rule that rejected the input, for audit logging.
	Rule string

	// Message is a safe, client-facing error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s/%s): %s", e.Kind, e.Rule, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(kind Kind, rule, message string) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		Rule:    rule,
		Message: message,
	}
}
