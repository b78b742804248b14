package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanranft/statguard/internal/domain/ratelimit"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

// Request carries the raw parameters handed to the guard by the
// external request-handling layer.
type Request struct {
	// ClientID identifies the authenticated caller. May be empty for
	// anonymous requests, in which case SourceIP scopes the rate limit.
	ClientID string
	// SourceIP is the caller's address, used for anonymous rate limiting.
	SourceIP string
	// Params are the raw request parameters under inspection.
	Params map[string]string
}

// limitKey returns the rate limit key for the request.
func (r *Request) limitKey() string {
	if r.ClientID != "" {
		return ratelimit.FormatKey(ratelimit.KeyTypeClient, r.ClientID)
	}
	if r.SourceIP != "" {
		return ratelimit.FormatKey(ratelimit.KeyTypeIP, r.SourceIP)
	}
	return ratelimit.FormatKey(ratelimit.KeyTypeIP, "unknown")
}

// RateLimitError is returned when a request is denied admission.
type RateLimitError struct {
	// RetryAfter indicates how long to wait before retrying.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
}

// Interceptor inspects a request and either passes it down the chain
// or rejects it with a classifiable error.
type Interceptor interface {
	// Check inspects the request. A nil return admits; a
	// *validation.ValidationError or *RateLimitError denies.
	Check(ctx context.Context, req *Request) error
}

// terminalInterceptor admits everything. It anchors the chain.
type terminalInterceptor struct{}

// Check implements Interceptor.
func (terminalInterceptor) Check(ctx context.Context, req *Request) error { return nil }

// RuleChecker evaluates config-defined rules against a parameter.
// Implemented by the CEL rule evaluator adapter.
type RuleChecker interface {
	Validate(ctx context.Context, client, key, param string) error
}

// ValidationInterceptor rejects dangerous parameter values before the
// rate limiter spends a slot on them.
//
// Position in chain: first. Chain order: Validation -> RateLimit.
type ValidationInterceptor struct {
	sql      *validation.SQLValidator
	path     *validation.PathValidator
	rules    RuleChecker
	pathKeys map[string]bool
	next     Interceptor
	logger   *slog.Logger
}

// NewValidationInterceptor creates a ValidationInterceptor.
//
// pathParams lists the parameter names validated as filesystem paths;
// every other parameter is validated as a SQL-bound value. rules may
// be nil when no config-defined rules are loaded.
func NewValidationInterceptor(
	sql *validation.SQLValidator,
	path *validation.PathValidator,
	rules RuleChecker,
	pathParams []string,
	next Interceptor,
	logger *slog.Logger,
) *ValidationInterceptor {
	pathKeys := make(map[string]bool, len(pathParams))
	for _, p := range pathParams {
		pathKeys[p] = true
	}
	return &ValidationInterceptor{
		sql:      sql,
		path:     path,
		rules:    rules,
		pathKeys: pathKeys,
		next:     next,
		logger:   logger,
	}
}

// Check validates every parameter and passes clean requests on.
func (v *ValidationInterceptor) Check(ctx context.Context, req *Request) error {
	for key, value := range req.Params {
		var err error
		if v.pathKeys[key] {
			err = v.path.Validate(value)
		} else {
			err = v.sql.Validate(value)
		}
		if err != nil {
			v.logger.Warn("parameter rejected",
				"client_id", req.ClientID,
				"param", key,
				"error", err,
			)
			return err
		}

		if v.rules != nil {
			if err := v.rules.Validate(ctx, req.ClientID, key, value); err != nil {
				v.logger.Warn("parameter rejected by rule",
					"client_id", req.ClientID,
					"param", key,
					"error", err,
				)
				return err
			}
		}
	}
	return v.next.Check(ctx, req)
}

// RateLimitInterceptor enforces the trailing-window admission bound.
//
// Position in chain: after Validation, so malformed requests are
// rejected without consuming a window slot.
type RateLimitInterceptor struct {
	limiter ratelimit.Limiter
	config  ratelimit.Config
	next    Interceptor
	logger  *slog.Logger
}

// NewRateLimitInterceptor creates a RateLimitInterceptor.
func NewRateLimitInterceptor(
	limiter ratelimit.Limiter,
	config ratelimit.Config,
	next Interceptor,
	logger *slog.Logger,
) *RateLimitInterceptor {
	return &RateLimitInterceptor{
		limiter: limiter,
		config:  config,
		next:    next,
		logger:  logger,
	}
}

// Check consults the limiter before passing to the next interceptor.
// Returns *RateLimitError when the request is denied.
func (r *RateLimitInterceptor) Check(ctx context.Context, req *Request) error {
	key := req.limitKey()
	result, err := r.limiter.Allow(ctx, key, r.config)
	if err != nil {
		r.logger.Error("failed to check rate limit",
			"key", key,
			"error", err,
		)
		// On infrastructure error, allow through (fail-open for availability).
		return r.next.Check(ctx, req)
	}

	if !result.Allowed {
		r.logger.Warn("request rate limited",
			"key", key,
			"retry_after", result.RetryAfter,
		)
		return &RateLimitError{RetryAfter: result.RetryAfter}
	}

	r.logger.Debug("rate limit check passed",
		"key", key,
		"remaining", result.Remaining,
	)
	return r.next.Check(ctx, req)
}

// Compile-time checks that the interceptors implement Interceptor.
var _ Interceptor = (*ValidationInterceptor)(nil)
var _ Interceptor = (*RateLimitInterceptor)(nil)
var _ Interceptor = terminalInterceptor{}
