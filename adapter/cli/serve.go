package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fundsaga/adapter/api"
)

var (
	serveAddr    string
	serveWorkers bool
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the subscription API",
	Long: `Serve the HTTP API and, unless --workers=false, the outbox processor
and the recovery worker in the same process. SIGINT or SIGTERM drains
in-flight requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveWorkers {
			if err := app.StartWorkers(ctx); err != nil {
				return err
			}
		}

		cfg := app.Server
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		server := api.NewServer(cfg, api.Deps{
			Subscriptions:  app.Subscriptions,
			Transactions:   app.Transactions,
			Health:         app.Health,
			MetricsHandler: app.MetricsHandler,
			Metrics:        app.Metrics,
		}, currentLogger())

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the outbox processor and the recovery worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := app.StartWorkers(ctx); err != nil {
			return err
		}
		currentLogger().Info("workers running, press Ctrl+C to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides HTTP_ADDR")
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", true, "run the background workers in-process")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}
