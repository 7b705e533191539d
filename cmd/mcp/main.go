// Command mcp serves the subscription saga to MCP clients over streamable HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/fundsaga/adapter/cli"
	"github.com/felixgeelhaar/fundsaga/internal/app"
	mcpinternal "github.com/felixgeelhaar/fundsaga/internal/mcp"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Version == "dev" {
		cfg.Version = cli.Version
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.Version)).
		With("component", "mcp")
	slog.SetDefault(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.StartWorkers(ctx); err != nil {
		return err
	}
	return mcpinternal.Serve(ctx, cfg, cli.NewApp(container), logger)
}
