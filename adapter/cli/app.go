package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/felixgeelhaar/fundsaga/adapter/api"
	internalApp "github.com/felixgeelhaar/fundsaga/internal/app"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/workers"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// RecoveryRunner runs one recovery cycle on demand.
type RecoveryRunner interface {
	RunOnce(ctx context.Context) (workers.CycleReport, error)
}

// App holds the CLI application dependencies.
type App struct {
	Subscriptions api.SubscriptionProcessor
	Transactions  api.TransactionFinder
	Recovery      RecoveryRunner

	Health         *observability.HealthRegistry
	Metrics        observability.Metrics
	MetricsHandler http.Handler

	// Seed writes the demo products, customer and coupons.
	Seed func(ctx context.Context) error
	// StartWorkers starts the enabled background workers.
	StartWorkers func(ctx context.Context) error

	Server api.ServerConfig
}

// NewApp wires the CLI to a built container.
func NewApp(c *internalApp.Container) *App {
	server := api.DefaultServerConfig()
	if c.Config.HTTPAddr != "" {
		server.Addr = c.Config.HTTPAddr
	}
	return &App{
		Subscriptions:  c.ProcessSubscriptionHandler,
		Transactions:   c.GetTransactionHandler,
		Recovery:       c.RecoveryWorker,
		Health:         c.Health,
		Metrics:        c.Metrics,
		MetricsHandler: c.Metrics.Handler(),
		Seed:           c.SeedDemoData,
		StartWorkers:   c.StartWorkers,
		Server:         server,
	}
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

func requireApp() (*App, error) {
	if app == nil {
		return nil, fmt.Errorf("application not initialized - database connection required")
	}
	return app, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
