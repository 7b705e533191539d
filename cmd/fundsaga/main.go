// Command fundsaga is the operator CLI and API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/felixgeelhaar/fundsaga/adapter/cli"
	"github.com/felixgeelhaar/fundsaga/internal/app"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// offline commands run without connecting to any backing service.
var offline = []string{"version", "help", "--help", "-h", "completion"}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if cfg.Version == "dev" {
		cfg.Version = cli.Version
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.Version))
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	if len(os.Args) < 2 || slices.Contains(offline, os.Args[1]) {
		if err := cli.Execute(ctx); err != nil {
			return 1
		}
		return 0
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		return 1
	}
	defer container.Close()

	cli.SetApp(cli.NewApp(container))
	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
