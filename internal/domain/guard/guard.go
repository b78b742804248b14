package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ryanranft/statguard/internal/domain/audit"
	"github.com/ryanranft/statguard/internal/domain/ratelimit"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

// Decision is the guard's admission verdict. On denial, Reason is a
// structured code the transport layer maps to a status (429 for
// rate_limited, 400 for validation failures, 504 for timeout); the
// exact mapping is owned by the caller.
type Decision struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool
	// Reason is the denial reason code. Empty when Allowed.
	Reason validation.Kind
	// Rule names the specific rule that fired, if any.
	Rule string
	// RetryAfter indicates how long to wait before retrying.
	// Only set for rate_limited denials.
	RetryAfter time.Duration
}

// Config holds the guard's tunables.
type Config struct {
	// RateLimit is the trailing-window admission bound per key.
	RateLimit ratelimit.Config
	// CheckTimeout bounds the wall-clock duration of a single
	// admission check. Zero disables the bound.
	CheckTimeout time.Duration
	// PathParams lists parameter names validated as filesystem paths.
	PathParams []string
}

// Guard runs requests through the interceptor chain and audits
// denials. The rate limiter and security validators share no mutable
// state with the retry executor; the guard never retries.
type Guard struct {
	chain  Interceptor
	sink   audit.Store
	config Config
	logger *slog.Logger
}

// New builds the guard chain: Validation -> RateLimit.
//
// pathRoot confines path parameters; rules may be nil when no
// config-defined rules are loaded. The audit sink is constructed by
// the caller and closed at shutdown.
func New(
	config Config,
	limiter ratelimit.Limiter,
	pathRoot string,
	rules RuleChecker,
	sink audit.Store,
	logger *slog.Logger,
) (*Guard, error) {
	pathValidator, err := validation.NewPathValidator(pathRoot)
	if err != nil {
		return nil, err
	}

	rl := NewRateLimitInterceptor(limiter, config.RateLimit, terminalInterceptor{}, logger)
	chain := NewValidationInterceptor(
		validation.NewSQLValidator(),
		pathValidator,
		rules,
		config.PathParams,
		rl,
		logger,
	)

	return &Guard{
		chain:  chain,
		sink:   sink,
		config: config,
		logger: logger,
	}, nil
}

// Admit runs the request through the chain and returns a Decision.
//
// Denials are recorded to the audit sink with redacted parameters.
// A non-nil error indicates an infrastructure failure, not a denial;
// validation and rate-limit rejections always surface as Decisions.
func (g *Guard) Admit(ctx context.Context, req *Request) (Decision, error) {
	checkErr := WithTimeout(ctx, "admission check", g.config.CheckTimeout, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return g.chain.Check(ctx, req)
	})
	if checkErr == nil {
		return Decision{Allowed: true}, nil
	}

	decision, ok := decisionFor(checkErr)
	if !ok {
		// Context cancellation or other infrastructure failure.
		return Decision{}, checkErr
	}

	g.audit(ctx, req, decision, checkErr)
	return decision, nil
}

// decisionFor maps a chain rejection to a Decision.
func decisionFor(err error) (Decision, bool) {
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return Decision{
			Reason:     validation.KindRateLimited,
			RetryAfter: rlErr.RetryAfter,
		}, true
	}

	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		return Decision{
			Reason: verr.Kind,
			Rule:   verr.Rule,
		}, true
	}

	var terr *TimeoutError
	if errors.As(err, &terr) {
		return Decision{Reason: validation.KindTimeout}, true
	}

	return Decision{}, false
}

// audit records a denial to the sink. Audit failures are logged, never
// surfaced: a broken sink must not turn denials into server errors.
func (g *Guard) audit(ctx context.Context, req *Request, decision Decision, cause error) {
	event := audit.SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      decision.Reason,
		ClientID:  req.ClientID,
		Rule:      decision.Rule,
		Detail:    cause.Error(),
		Params:    audit.RedactSensitiveParams(req.Params),
	}
	if err := g.sink.Append(ctx, event); err != nil {
		g.logger.Error("failed to append audit event",
			"kind", event.Kind,
			"client_id", req.ClientID,
			"error", err,
		)
	}
}
