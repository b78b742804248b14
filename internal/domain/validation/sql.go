package validation

import (
	"regexp"
	"strings"
)

// MaxParamLength is the maximum length of any SQL-bound parameter.
// Longer inputs are rejected outright to bound regex work.
const MaxParamLength = 4096

// Allow-list shapes. A parameter matching any of these is accepted
// without consulting the deny patterns: rejecting anything that does
// not look like an expected parameter beats enumerating attacks.
var (
	integerShape    = regexp.MustCompile(`^-?\d+$`)
	numberShape     = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	// identifierShape allows single interior hyphens but not "--",
	// which would mask the comment-sequence deny rule.
	identifierShape = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(-[a-zA-Z0-9_]+)*$`)
	// seasonShape matches season identifiers like "2025-26".
	seasonShape = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// sqlDenyRule pairs a named pattern with the structure it detects.
type sqlDenyRule struct {
	name    string
	pattern *regexp.Regexp
}

// sqlDenyRules flag raw SQL control structures in free-text parameters.
// Checked against the lowercased input after allow-list shapes miss.
var sqlDenyRules = []sqlDenyRule{
	{"statement-chaining", regexp.MustCompile(`;\s*(select|insert|update|delete|drop|alter|create|truncate|exec|grant)\b`)},
	{"union-select", regexp.MustCompile(`\bunion(\s+all)?\s+select\b`)},
	{"comment-sequence", regexp.MustCompile(`(--|#|/\*)`)},
	{"tautology", regexp.MustCompile(`['"]\s*(or|and)\s+['"]?\w+['"]?\s*=`)},
	{"quote-termination", regexp.MustCompile(`'\s*;`)},
	{"stacked-terminator", regexp.MustCompile(`;\s*--`)},
}

// SQLValidator rejects parameters carrying SQL injection structures.
//
// Policy is allow-list first: well-formed scalar shapes (integers,
// numbers, identifiers, season ids) pass immediately. Free text is
// then checked against the deny rules, and any match rejects the
// whole parameter.
type SQLValidator struct{}

// NewSQLValidator creates a SQLValidator. Patterns are package-level
// and compiled once; the validator itself is stateless.
func NewSQLValidator() *SQLValidator {
	return &SQLValidator{}
}

// Validate returns nil if the parameter is safe to bind, or a
// *ValidationError naming the deny rule that fired.
func (v *SQLValidator) Validate(param string) error {
	if len(param) > MaxParamLength {
		return NewValidationError(KindSQLInjection, "max-length", "parameter too long")
	}

	// Null bytes never belong in a parameter.
	if strings.ContainsRune(param, '\x00') {
		return NewValidationError(KindSQLInjection, "null-byte", "parameter contains null byte")
	}

	if v.matchesAllowedShape(param) {
		return nil
	}

	lower := strings.ToLower(param)
	for _, rule := range sqlDenyRules {
		if rule.pattern.MatchString(lower) {
			return NewValidationError(KindSQLInjection, rule.name, "parameter contains SQL control structures")
		}
	}

	return nil
}

// matchesAllowedShape reports whether the parameter matches one of the
// expected scalar shapes.
func (v *SQLValidator) matchesAllowedShape(param string) bool {
	return integerShape.MatchString(param) ||
		numberShape.MatchString(param) ||
		identifierShape.MatchString(param) ||
		seasonShape.MatchString(param)
}
