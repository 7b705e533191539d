package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write demo products, a customer and coupons",
	Long: `Upsert the local demo fixtures: products 000001 (CNY)
and 000002 (USD), customer C001 with account 6222000011112222, and the
coupons CP50 and CP20 when the marketing simulator is in use. Running it
again is harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		if err := app.Seed(cmd.Context()); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "demo data seeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
