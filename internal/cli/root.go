// Package cli is the qaforge command line: the HTTP server plus offline
// commands that share its wiring.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"qaforge/internal/app"
	"qaforge/internal/config"
	"qaforge/internal/logger"
)

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "qaforge",
	Short: "Grounded test case and test script generation",
	Long: `qaforge indexes product documents into a vector knowledge base and
generates test cases and Selenium scripts grounded in them.

Example usage:
  qaforge serve                                  # Run the HTTP API
  qaforge ingest ./docs --clear                  # Rebuild the knowledge base
  qaforge generate-tests -q "discount codes"     # Generate test cases
  qaforge generate-script --test-id TC-001       # Generate a script`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

// withApp bootstraps the dependencies, wires the application and hands it to fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.Backend, deps.NSQProducer)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
