// Package cmd provides the CLI commands for statguard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryanranft/statguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "statguard",
	Short: "statguard - request admission guard for analytics backends",
	Long: `statguard is an admission guard for sports-analytics query backends.

It validates request parameters against SQL injection and path traversal
shapes, enforces per-client sliding-window rate limits, bounds check
latency, and records every denial as an audit event.

Quick start:
  1. Create a config file: statguard.yaml
  2. Run: statguard serve

Configuration:
  Config is loaded from statguard.yaml in the current directory,
  $HOME/.statguard/, or /etc/statguard/.

  Environment variables can override config values with the STATGUARD_ prefix.
  Example: STATGUARD_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the admission guard server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./statguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
