// Package cli is the fundsaga command line.
package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

var (
	outputJSON bool
	logger     *slog.Logger
)

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "fundsaga",
	Short: "Fund subscription saga service",
	Long: `fundsaga accepts fund subscriptions, books them against core banking,
applies marketing coupons, and compensates every partial booking
when a step fails.`,
	SilenceUsage:      true,
	PersistentPreRun:  beginCommand,
	PersistentPostRun: endCommand,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
}

// beginCommand gives every invocation its own correlation id so the
// transactions it creates can be traced back to it in the logs.
func beginCommand(cmd *cobra.Command, _ []string) {
	ctx := observability.WithCorrelationID(cmd.Context(), "")
	ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
	cmd.SetContext(ctx)
	currentLogger().DebugContext(ctx, "command start", "command", cmd.CommandPath())
}

func endCommand(cmd *cobra.Command, _ []string) {
	started, ok := cmd.Context().Value(startedAtKey{}).(time.Time)
	if !ok {
		return
	}
	currentLogger().DebugContext(cmd.Context(), "command end",
		"command", cmd.CommandPath(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// Execute runs the command line against ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Root returns the root command.
func Root() *cobra.Command {
	return rootCmd
}

func currentLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
