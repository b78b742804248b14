// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the trailing-window rate limit parameters.
// Created at startup and read-only thereafter.
type Config struct {
	// MaxRequests is the maximum number of admitted requests per window.
	MaxRequests int

	// Window is the trailing time window for the request count.
	Window time.Duration
}

// Result contains the outcome of an admission check.
type Result struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is the duration until the next request will be admitted.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// KeyType identifies the scope of a rate limit key.
type KeyType string

const (
	// KeyTypeIP scopes limits to a source IP address.
	KeyTypeIP KeyType = "ip"

	// KeyTypeClient scopes limits to an authenticated client id.
	KeyTypeClient KeyType = "client"
)

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{type}:{value}"
// Example: FormatKey(KeyTypeClient, "scout-7") -> "ratelimit:client:scout-7"
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, keyType, value)
}
