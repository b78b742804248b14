// Package http provides the HTTP admission API for the guard.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ryanranft/statguard/internal/domain/guard"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// Admitter decides whether a request may proceed.
// Satisfied by *guard.Guard.
type Admitter interface {
	Admit(ctx context.Context, req *guard.Request) (guard.Decision, error)
}

// checkRequest is the body of POST /v1/check.
type checkRequest struct {
	// ClientID identifies the caller for rate limiting and audit.
	// Optional: anonymous requests are limited by source IP.
	ClientID string `json:"client_id,omitempty"`

	// Params are the request parameters to validate.
	Params map[string]string `json:"params"`
}

// checkResponse is the body returned for every admission verdict.
type checkResponse struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// checkHandler serves POST /v1/check: it runs the request through the
// guard and maps the Decision onto an HTTP status.
//
//	allowed                 -> 200
//	rate_limited            -> 429 + Retry-After
//	validation failure      -> 400
//	timeout                 -> 504
func checkHandler(admitter Admitter, metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		logger := LoggerFromContext(r.Context())

		// Apply payload size limit before reading body
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer func() { _ = r.Body.Close() }()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) == 0 {
			writeJSONError(w, http.StatusBadRequest, "empty request body")
			return
		}

		var checkReq checkRequest
		if err := json.Unmarshal(body, &checkReq); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON")
			return
		}

		req := &guard.Request{
			ClientID: checkReq.ClientID,
			SourceIP: IPFromContext(r.Context()),
			Params:   checkReq.Params,
		}

		decision, err := admitter.Admit(r.Context(), req)
		if err != nil {
			// Client disconnected: don't write a response.
			if r.Context().Err() != nil {
				return
			}
			logger.Error("admission check failed", "error", err)
			metrics.ChecksTotal.WithLabelValues("error").Inc()
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if decision.Allowed {
			metrics.ChecksTotal.WithLabelValues("allowed").Inc()
			writeJSON(w, http.StatusOK, checkResponse{Allowed: true})
			return
		}

		metrics.ChecksTotal.WithLabelValues(string(decision.Reason)).Inc()

		resp := checkResponse{
			Allowed: false,
			Reason:  string(decision.Reason),
			Rule:    decision.Rule,
		}

		switch decision.Reason {
		case validation.KindRateLimited:
			retryAfter := int(decision.RetryAfter.Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			resp.RetryAfter = retryAfter
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, resp)
		case validation.KindTimeout:
			writeJSON(w, http.StatusGatewayTimeout, resp)
		default:
			writeJSON(w, http.StatusBadRequest, resp)
		}
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// healthHandler responds with 200 OK for liveness checks.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
