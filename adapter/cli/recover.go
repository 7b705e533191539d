package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover stuck and failed subscriptions",
}

var recoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one recovery cycle now",
	Long: `Fail transactions stuck mid-saga and compensate every failed
transaction that still holds a booking or a coupon. Transactions that
exhausted their attempts are escalated to manual intervention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		report, err := app.Recovery.RunOnce(cmd.Context())
		out := cmd.OutOrStdout()
		if outputJSON {
			if jsonErr := printJSON(out, report); jsonErr != nil {
				return jsonErr
			}
		} else {
			fmt.Fprintln(out, "Recovery cycle:")
			fmt.Fprintf(out, "  Stuck:       %d\n", report.Stuck)
			fmt.Fprintf(out, "  Compensated: %d\n", report.Compensated)
			fmt.Fprintf(out, "  Retried:     %d\n", report.Retried)
			fmt.Fprintf(out, "  Escalated:   %d\n", report.Escalated)
			fmt.Fprintf(out, "  Skipped:     %d\n", report.Skipped)
			fmt.Fprintf(out, "  Errors:      %d\n", report.Errors)
		}
		if err != nil {
			return fmt.Errorf("recovery cycle failed: %w", err)
		}
		return nil
	},
}

func init() {
	recoverCmd.AddCommand(recoverRunCmd)
	rootCmd.AddCommand(recoverCmd)
}
