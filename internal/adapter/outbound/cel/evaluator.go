// Package cel provides a CEL-based evaluator for config-defined
// parameter validation rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	"github.com/ryanranft/statguard/internal/domain/validation"
)

// maxExpressionLength is the maximum allowed length for rule expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single rule evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// compiledRule is a validation rule with its compiled CEL program.
type compiledRule struct {
	rule validation.Rule
	prg  cel.Program
	// hash of name+expr, used to detect duplicate rule definitions.
	hash uint64
}

// RuleValidator compiles config-defined rules once at construction and
// evaluates them against request parameters. A parameter passes only
// if every rule covering it evaluates to true.
type RuleValidator struct {
	env   *cel.Env
	rules []compiledRule
}

// newRuleEnvironment creates a CEL environment exposing the parameter
// under check, its key, and the calling client id.
func newRuleEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("param", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("client", cel.StringType),
	)
}

// NewRuleValidator compiles the given rules. Rules with identical
// name and expression are rejected as configuration errors.
func NewRuleValidator(rules []validation.Rule) (*RuleValidator, error) {
	env, err := newRuleEnvironment()
	if err != nil {
		return nil, fmt.Errorf("creating rule environment: %w", err)
	}

	v := &RuleValidator{env: env}
	seen := make(map[uint64]string, len(rules))
	for _, rule := range rules {
		if err := validateExpression(rule.Expr); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		prg, err := v.compile(rule.Expr)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		h := ruleHash(rule)
		if prev, dup := seen[h]; dup {
			return nil, fmt.Errorf("rule %q duplicates rule %q", rule.Name, prev)
		}
		seen[h] = rule.Name
		v.rules = append(v.rules, compiledRule{rule: rule, prg: prg, hash: h})
	}
	return v, nil
}

// Len returns the number of compiled rules.
func (v *RuleValidator) Len() int {
	return len(v.rules)
}

// Validate evaluates every rule covering key against the parameter.
// Returns nil if all rules hold, or a *validation.ValidationError
// naming the first rule that rejected it.
func (v *RuleValidator) Validate(ctx context.Context, client, key, param string) error {
	if len(v.rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"param":  param,
		"key":    key,
		"client": client,
	}

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	for _, cr := range v.rules {
		if !cr.rule.AppliesTo(key) {
			continue
		}
		result, _, err := cr.prg.ContextEval(evalCtx, activation)
		if err != nil {
			return fmt.Errorf("evaluating rule %q: %w", cr.rule.Name, err)
		}
		ok, isBool := result.Value().(bool)
		if !isBool {
			return fmt.Errorf("rule %q did not return a boolean, got %T", cr.rule.Name, result.Value())
		}
		if !ok {
			return validation.NewValidationError(validation.KindRuleViolation, cr.rule.Name, "parameter rejected by validation rule")
		}
	}
	return nil
}

// compile parses and type-checks a rule expression, returning a compiled program.
func (v *RuleValidator) compile(expression string) (cel.Program, error) {
	ast, issues := v.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := v.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateExpression enforces safety limits before compilation
// (expression length, nesting depth).
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	return validateNesting(expr)
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ruleHash fingerprints a rule by name and expression.
func ruleHash(r validation.Rule) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(r.Name)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(r.Expr)
	return h.Sum64()
}
