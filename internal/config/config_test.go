package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != "1s" {
		t.Errorf("Retry.InitialDelay = %q, want %q", cfg.Retry.InitialDelay, "1s")
	}
	if cfg.Retry.BackoffFactor != 2.0 {
		t.Errorf("Retry.BackoffFactor = %v, want 2.0", cfg.Retry.BackoffFactor)
	}
	if cfg.Retry.RetryTimeouts {
		t.Error("Retry.RetryTimeouts should default to false")
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("RateLimit.MaxRequests = %d, want 100", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != "1m" {
		t.Errorf("RateLimit.Window = %q, want %q", cfg.RateLimit.Window, "1m")
	}
	if cfg.Audit.Output != "stderr" {
		t.Errorf("Audit.Output = %q, want %q", cfg.Audit.Output, "stderr")
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("Audit.RetentionDays = %d, want 30", cfg.Audit.RetentionDays)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{
			HTTPAddr: ":9090",
			LogLevel: "warn",
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: "250ms",
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 10,
		},
	}

	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Server.LogLevel != "warn" {
		t.Errorf("LogLevel was overwritten: got %q, want %q", cfg.Server.LogLevel, "warn")
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts was overwritten: got %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != "250ms" {
		t.Errorf("InitialDelay was overwritten: got %q, want %q", cfg.Retry.InitialDelay, "250ms")
	}
	if cfg.RateLimit.MaxRequests != 10 {
		t.Errorf("MaxRequests was overwritten: got %d, want 10", cfg.RateLimit.MaxRequests)
	}
}

func TestConfig_SetDefaults_DevModeLogLevel(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q in dev mode", cfg.Server.LogLevel, "debug")
	}

	// An explicit level wins over the dev-mode default.
	cfg2 := Config{DevMode: true, Server: ServerConfig{LogLevel: "error"}}
	cfg2.SetDefaults()

	if cfg2.Server.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want %q", cfg2.Server.LogLevel, "error")
	}
}

func TestConfig_ParsedDurations(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if got := cfg.Retry.ParsedInitialDelay(); got != time.Second {
		t.Errorf("ParsedInitialDelay = %v, want 1s", got)
	}
	if got := cfg.Retry.ParsedMaxDelay(); got != 60*time.Second {
		t.Errorf("ParsedMaxDelay = %v, want 60s", got)
	}
	if got := cfg.RateLimit.ParsedWindow(); got != time.Minute {
		t.Errorf("ParsedWindow = %v, want 1m", got)
	}
	if got := cfg.RateLimit.ParsedCleanupInterval(); got != 5*time.Minute {
		t.Errorf("ParsedCleanupInterval = %v, want 5m", got)
	}
	if got := cfg.RateLimit.ParsedMaxTTL(); got != time.Hour {
		t.Errorf("ParsedMaxTTL = %v, want 1h", got)
	}
	if got := cfg.Validation.ParsedCheckTimeout(); got != 5*time.Second {
		t.Errorf("ParsedCheckTimeout = %v, want 5s", got)
	}

	cfg.RateLimit.Window = "30s"
	if got := cfg.RateLimit.ParsedWindow(); got != 30*time.Second {
		t.Errorf("ParsedWindow = %v, want 30s", got)
	}
}

func validConfig() Config {
	cfg := Config{
		Validation: ValidationConfig{PathRoot: "/var/lib/statguard/data"},
	}
	cfg.SetDefaults()
	return cfg
}

func TestConfig_Validate_OK(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate_MissingPathRoot(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for missing path_root")
	}
	if !strings.Contains(err.Error(), "PathRoot") {
		t.Errorf("error %q should mention PathRoot", err)
	}
}

func TestConfig_Validate_BadDuration(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RateLimit.Window = "not-a-duration"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for bad duration")
	}
	if !strings.Contains(err.Error(), "valid duration") {
		t.Errorf("error %q should mention valid duration", err)
	}
}

func TestConfig_Validate_BadAuditOutput(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Audit.Output = "kafka"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for unknown audit output")
	}
	if !strings.Contains(err.Error(), "one of") {
		t.Errorf("error %q should list allowed outputs", err)
	}
}

func TestConfig_Validate_SQLiteRequiresDBPath(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Audit.Output = "sqlite"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for sqlite without db_path")
	}
	if !strings.Contains(err.Error(), "db_path") {
		t.Errorf("error %q should mention db_path", err)
	}

	cfg.Audit.DBPath = "/var/lib/statguard/audit.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with db_path = %v, want nil", err)
	}
}

func TestConfig_Validate_JSONLRequiresDir(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Audit.Output = "jsonl"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for jsonl without dir")
	}
	if !strings.Contains(err.Error(), "audit.dir") {
		t.Errorf("error %q should mention audit.dir", err)
	}

	cfg.Audit.Dir = "/var/lib/statguard/events"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with dir = %v, want nil", err)
	}
}

func TestConfig_Validate_BadBackoffFactor(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Retry.BackoffFactor = 1.0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for backoff factor <= 1")
	}
}

func TestConfig_Validate_BadHTTPAddr(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Server.HTTPAddr = "not an address"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for bad http_addr")
	}
	if !strings.Contains(err.Error(), "host:port") {
		t.Errorf("error %q should mention host:port", err)
	}
}

func TestConfig_Validate_NegativeCheckTimeout(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Validation.CheckTimeout = "-5s"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for negative check_timeout")
	}
}
