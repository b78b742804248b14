// Package statguard provides a Go SDK for the statguard admission API.
//
// statguard is an admission guard for analytics query backends. This SDK
// lets Go services check request parameters against the guard before
// executing them. It uses only the Go standard library (net/http) with
// zero external dependencies.
//
// Quick start:
//
//	// Set STATGUARD_SERVER_ADDR and STATGUARD_CLIENT_ID env vars, then:
//	client := statguard.NewClient()
//
//	resp, err := client.Check(ctx, statguard.CheckRequest{
//	    Params: map[string]string{"player": "lebron", "season": "2025-26"},
//	})
//	if err != nil {
//	    var denied *statguard.RequestDeniedError
//	    if errors.As(err, &denied) {
//	        fmt.Printf("Denied (%s) by rule %s\n", denied.Reason, denied.Rule)
//	    }
//	}
package statguard

// Denial reason codes returned by the statguard server.
const (
	// ReasonRateLimited indicates a sliding-window admission denial.
	ReasonRateLimited = "rate_limited"

	// ReasonSQLInjection indicates a parameter matching SQL injection shapes.
	ReasonSQLInjection = "sql_injection_suspected"

	// ReasonPathTraversal indicates a path escaping the configured root.
	ReasonPathTraversal = "path_traversal_suspected"

	// ReasonTimeout indicates the admission check exceeded its bound.
	ReasonTimeout = "timeout"

	// ReasonRuleViolation indicates a config-defined rule rejected a parameter.
	ReasonRuleViolation = "rule_violation"
)

// CheckRequest is an admission check sent to the statguard server.
type CheckRequest struct {
	// ClientID identifies the caller for rate limiting and audit.
	// When empty, the client's configured default is used; anonymous
	// requests are limited by source IP on the server side.
	ClientID string `json:"client_id,omitempty"`

	// Params are the request parameters to validate.
	Params map[string]string `json:"params"`
}

// CheckResponse is the structured admission verdict returned by the server.
type CheckResponse struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool `json:"allowed"`

	// Reason is the denial reason code. Empty when Allowed.
	Reason string `json:"reason,omitempty"`

	// Rule names the specific rule that fired, if any.
	Rule string `json:"rule,omitempty"`

	// RetryAfterSeconds indicates how long to wait before retrying.
	// Only set for rate_limited denials.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`

	// RequestID is the server-assigned correlation ID.
	RequestID string `json:"-"`
}
