package retry

import (
	"errors"
	"strings"
)

// Classifier decides whether a failed attempt should be retried.
type Classifier interface {
	// Retryable returns true if the error is transient and the
	// operation may be attempted again.
	Retryable(err error) bool
}

// fatalError marks an error as non-retryable regardless of its text.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// retryableError marks an error as retryable regardless of its text.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Fatal wraps err so no classifier retries it. Returns nil for nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Retryable wraps err so keyword classification is skipped and the
// error is always retried. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsFatal reports whether err was wrapped with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// authKeywords indicate authentication or authorization failures.
// Retrying these wastes provider quota and can lock out the key.
var authKeywords = []string{"auth", "key", "unauthorized", "forbidden"}

// quotaKeywords indicate the provider itself is rate limiting us.
// These surface to the caller instead of hiding behind retries.
var quotaKeywords = []string{"rate limit", "quota"}

// KeywordClassifier classifies errors by inspecting the error text.
// Auth and provider-quota failures are fatal; everything else is
// assumed transient. Explicit Fatal/Retryable wrappers take priority
// over keyword matching.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a KeywordClassifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Retryable implements Classifier.
func (c *KeywordClassifier) Retryable(err error) bool {
	if err == nil {
		return false
	}

	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	if IsFatal(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range authKeywords {
		if strings.Contains(msg, kw) {
			return false
		}
	}
	for _, kw := range quotaKeywords {
		if strings.Contains(msg, kw) {
			return false
		}
	}
	return true
}

// Compile-time check that KeywordClassifier implements Classifier.
var _ Classifier = (*KeywordClassifier)(nil)
