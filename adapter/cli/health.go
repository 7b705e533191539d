package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database, cache, broker and breaker health",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		health := app.Health.GetOverallHealth(cmd.Context())
		out := cmd.OutOrStdout()
		if outputJSON {
			if err := printJSON(out, health); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "status: %s\n", health.Status)
			for _, name := range app.Health.Names() {
				result := health.Checks[name]
				line := fmt.Sprintf("  %-10s %s", name, result.Status)
				if result.Message != "" {
					line += " (" + result.Message + ")"
				}
				fmt.Fprintln(out, line)
			}
		}

		if health.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("service unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
