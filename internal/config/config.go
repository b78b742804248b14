// Package config provides configuration types for statguard.
package config

import "time"

// Config is the top-level configuration for statguard.
type Config struct {
	// Server configures the HTTP admission listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Retry configures the backoff executor for outbound provider calls.
	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	// RateLimit configures the trailing-window admission limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Validation configures the parameter validators.
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`

	// Audit configures where security events are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// APIRateLimit is the per-IP request bound on the admission API
	// itself, expressed as requests per minute. Defaults to 300.
	APIRateLimit int `yaml:"api_rate_limit" mapstructure:"api_rate_limit" validate:"omitempty,min=1"`
}

// RetryConfig configures the backoff executor.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations per operation.
	// Defaults to 3.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`

	// InitialDelay is the delay before the first retry (e.g., "1s").
	// Defaults to "1s".
	InitialDelay string `yaml:"initial_delay" mapstructure:"initial_delay" validate:"omitempty,duration"`

	// BackoffFactor multiplies the delay after each attempt. Must be > 1.
	// Defaults to 2.0.
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor" validate:"omitempty,gt=1"`

	// MaxDelay caps the delay between attempts (e.g., "60s").
	// Defaults to "60s".
	MaxDelay string `yaml:"max_delay" mapstructure:"max_delay" validate:"omitempty,duration"`

	// RetryTimeouts controls whether timed-out attempts are retried.
	// Defaults to false: timeouts surface immediately.
	RetryTimeouts bool `yaml:"retry_timeouts" mapstructure:"retry_timeouts"`
}

// RateLimitConfig configures the trailing-window limiter.
type RateLimitConfig struct {
	// MaxRequests is the maximum admitted requests per window per key.
	// Defaults to 100.
	MaxRequests int `yaml:"max_requests" mapstructure:"max_requests" validate:"omitempty,min=1"`

	// Window is the trailing window duration (e.g., "1m").
	// Defaults to "1m".
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// CleanupInterval is how often stale keys are removed (e.g., "5m").
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is the maximum age of an idle key before removal (e.g., "1h").
	// Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// ValidationConfig configures the parameter validators.
type ValidationConfig struct {
	// PathRoot confines path parameters to a directory. Required.
	PathRoot string `yaml:"path_root" mapstructure:"path_root" validate:"required"`

	// PathParams lists parameter names validated as filesystem paths.
	PathParams []string `yaml:"path_params" mapstructure:"path_params"`

	// RulesFile points at a YAML file of config-defined CEL rules.
	// Optional: empty disables custom rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`

	// CheckTimeout bounds a single admission check (e.g., "5s").
	// Defaults to "5s". "0" disables the bound.
	CheckTimeout string `yaml:"check_timeout" mapstructure:"check_timeout" validate:"omitempty,duration"`
}

// AuditConfig configures security event persistence.
type AuditConfig struct {
	// Output selects the audit backend: "stderr", "sqlite", or "jsonl".
	// Defaults to "stderr".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=stderr sqlite jsonl"`

	// DBPath is the SQLite database location. Required when Output is "sqlite".
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// Dir is the event file directory. Required when Output is "jsonl".
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how many days of events to keep (sqlite and jsonl).
	// Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
}

// Default configuration values.
const (
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultLogLevel        = "info"
	defaultAPIRateLimit    = 300
	defaultMaxAttempts     = 3
	defaultInitialDelay    = "1s"
	defaultBackoffFactor   = 2.0
	defaultMaxDelay        = "60s"
	defaultMaxRequests     = 100
	defaultWindow          = "1m"
	defaultCleanupInterval = "5m"
	defaultMaxTTL          = "1h"
	defaultCheckTimeout    = "5s"
	defaultAuditOutput     = "stderr"
	defaultRetentionDays   = 30
)

// SetDefaults fills in default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = defaultHTTPAddr
	}
	if c.Server.LogLevel == "" {
		if c.DevMode {
			c.Server.LogLevel = "debug"
		} else {
			c.Server.LogLevel = defaultLogLevel
		}
	}
	if c.Server.APIRateLimit == 0 {
		c.Server.APIRateLimit = defaultAPIRateLimit
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Retry.InitialDelay == "" {
		c.Retry.InitialDelay = defaultInitialDelay
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = defaultBackoffFactor
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = defaultMaxDelay
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = defaultMaxRequests
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = defaultWindow
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = defaultCleanupInterval
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = defaultMaxTTL
	}
	if c.Validation.CheckTimeout == "" {
		c.Validation.CheckTimeout = defaultCheckTimeout
	}
	if c.Audit.Output == "" {
		c.Audit.Output = defaultAuditOutput
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = defaultRetentionDays
	}
}

// Duration helpers. Values are validated before use, so parse failures
// fall back to the documented defaults rather than panicking.

// ParsedInitialDelay returns the retry initial delay as a Duration.
func (c *RetryConfig) ParsedInitialDelay() time.Duration {
	return parseDurationOr(c.InitialDelay, time.Second)
}

// ParsedMaxDelay returns the retry delay cap as a Duration.
func (c *RetryConfig) ParsedMaxDelay() time.Duration {
	return parseDurationOr(c.MaxDelay, 60*time.Second)
}

// ParsedWindow returns the rate limit window as a Duration.
func (c *RateLimitConfig) ParsedWindow() time.Duration {
	return parseDurationOr(c.Window, time.Minute)
}

// ParsedCleanupInterval returns the cleanup interval as a Duration.
func (c *RateLimitConfig) ParsedCleanupInterval() time.Duration {
	return parseDurationOr(c.CleanupInterval, 5*time.Minute)
}

// ParsedMaxTTL returns the idle-key TTL as a Duration.
func (c *RateLimitConfig) ParsedMaxTTL() time.Duration {
	return parseDurationOr(c.MaxTTL, time.Hour)
}

// ParsedCheckTimeout returns the admission check bound as a Duration.
func (c *ValidationConfig) ParsedCheckTimeout() time.Duration {
	return parseDurationOr(c.CheckTimeout, 5*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
