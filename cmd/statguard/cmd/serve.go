// Package cmd provides the CLI commands for statguard.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ryanranft/statguard/internal/adapter/inbound/http"
	"github.com/ryanranft/statguard/internal/adapter/outbound/cel"
	"github.com/ryanranft/statguard/internal/adapter/outbound/jsonl"
	"github.com/ryanranft/statguard/internal/adapter/outbound/memory"
	"github.com/ryanranft/statguard/internal/adapter/outbound/sqlite"
	"github.com/ryanranft/statguard/internal/config"
	"github.com/ryanranft/statguard/internal/domain/audit"
	"github.com/ryanranft/statguard/internal/domain/guard"
	"github.com/ryanranft/statguard/internal/domain/ratelimit"
	"github.com/ryanranft/statguard/internal/domain/retry"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission guard server",
	Long: `Start the statguard admission server.

The server exposes:
  POST /v1/check  - admission check for request parameters
  GET  /healthz   - liveness probe
  GET  /metrics   - Prometheus metrics

Examples:
  # Start with config file settings
  statguard serve

  # Start with a specific config file
  statguard --config /path/to/statguard.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration without validation, so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("statguard stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Rate limiter with background cleanup of stale keys.
	limiter := memory.NewSlidingWindowLimiterWithConfig(
		cfg.RateLimit.ParsedCleanupInterval(),
		cfg.RateLimit.ParsedMaxTTL(),
	)
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	// Config-defined rules, if any.
	var ruleChecker guard.RuleChecker
	if cfg.Validation.RulesFile != "" {
		rules, err := validation.LoadRules(cfg.Validation.RulesFile)
		if err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		validator, err := cel.NewRuleValidator(rules)
		if err != nil {
			return fmt.Errorf("failed to compile rules: %w", err)
		}
		ruleChecker = validator
		logger.Info("loaded custom rules", "file", cfg.Validation.RulesFile, "rules", len(rules))
	}

	// Audit sink.
	sink, err := createAuditStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit store: %w", err)
	}
	defer func() { _ = sink.Close() }()

	guardConfig := guard.Config{
		RateLimit: ratelimit.Config{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.ParsedWindow(),
		},
		CheckTimeout: cfg.Validation.ParsedCheckTimeout(),
		PathParams:   cfg.Validation.PathParams,
	}

	g, err := guard.New(guardConfig, limiter, cfg.Validation.PathRoot, ruleChecker, sink, logger)
	if err != nil {
		return fmt.Errorf("failed to create guard: %w", err)
	}

	logger.Info("statguard starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"rate_limit", fmt.Sprintf("%d/%s", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		"check_timeout", cfg.Validation.CheckTimeout,
		"audit_output", cfg.Audit.Output,
	)

	server := http.NewServer(g,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithAPIRateLimit(cfg.Server.APIRateLimit),
		http.WithKeyCounter(limiter.Size),
	)
	return server.Start(ctx)
}

// createAuditStore creates an audit store based on configuration.
// The SQLite open goes through the retry executor: a transient lock
// held by a previous instance during restart should not kill the boot.
func createAuditStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	switch cfg.Audit.Output {
	case "stderr":
		return memory.NewAuditStoreWithWriter(os.Stderr), nil

	case "sqlite":
		executor, err := retry.NewExecutor(retry.Policy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.ParsedInitialDelay(),
			BackoffFactor: cfg.Retry.BackoffFactor,
			MaxDelay:      cfg.Retry.ParsedMaxDelay(),
			RetryTimeouts: cfg.Retry.RetryTimeouts,
		}, nil, logger)
		if err != nil {
			return nil, err
		}

		store, err := retry.Do(ctx, executor, "open audit store", func(ctx context.Context) (*sqlite.AuditStore, error) {
			return sqlite.Open(sqlite.Config{
				Path:          cfg.Audit.DBPath,
				RetentionDays: cfg.Audit.RetentionDays,
			}, logger)
		})
		if err != nil {
			return nil, err
		}

		// Prune old events once at boot; the retention window advances
		// on each restart rather than on a timer.
		if err := store.RunRetention(ctx); err != nil {
			logger.Warn("audit retention failed", "error", err)
		}
		return store, nil

	case "jsonl":
		return jsonl.Open(jsonl.Config{
			Dir:           cfg.Audit.Dir,
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'stderr', 'sqlite', or 'jsonl')", cfg.Audit.Output)
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
