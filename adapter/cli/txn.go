package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

var txnCmd = &cobra.Command{
	Use:     "txn",
	Short:   "Inspect subscription transactions",
	Aliases: []string{"transaction"},
}

var txnShowCmd = &cobra.Command{
	Use:   "show [serial-number]",
	Short: "Show one transaction with its coupon usages",
	Long: `Display the saga state, fee breakdown and external booking ids of a
transaction.

Examples:
  fundsaga txn show SUB20260105093000000000000001
  fundsaga txn show SUB20260105093000000000000001 --json`,
	Aliases: []string{"get"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		dto, err := app.Transactions.Handle(cmd.Context(), queries.GetTransactionQuery{SerialNumber: args[0]})
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return fmt.Errorf("transaction %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to get transaction: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(out, dto)
		}

		fmt.Fprintf(out, "Transaction: %s\n", dto.SerialNumber)
		fmt.Fprintf(out, "  Customer:    %s (%s)\n", dto.CustomerID, dto.AccountNumber)
		fmt.Fprintf(out, "  Product:     %s via %s\n", dto.ProductCode, dto.Channel)
		fmt.Fprintf(out, "  Amount:      %s %s\n", dto.Amount, dto.Currency)
		fmt.Fprintf(out, "  Fee:         %s - %s = %s\n", dto.OriginalFee, dto.Discount, dto.FinalFee)
		fmt.Fprintf(out, "  Status:      %s / %s\n", dto.Status, dto.SagaState)
		if dto.AccountingType != "" {
			fmt.Fprintf(out, "  Accounting:  %s\n", dto.AccountingType)
		}
		if dto.CoreBankingTxnID != "" {
			fmt.Fprintf(out, "  Ledger ref:  %s\n", dto.CoreBankingTxnID)
		}
		if dto.FreezeID != "" {
			fmt.Fprintf(out, "  Freeze ref:  %s\n", dto.FreezeID)
		}
		if dto.ErrorCode != "" {
			fmt.Fprintf(out, "  Error:       %s %s\n", dto.ErrorCode, dto.ErrorMessage)
		}
		if dto.CompensationAttempts > 0 {
			fmt.Fprintf(out, "  Compensated: %d attempt(s)\n", dto.CompensationAttempts)
		}
		for _, usage := range dto.CouponUsages {
			fmt.Fprintf(out, "  Coupon:      %s %s (usage %s)\n", usage.CouponID, usage.Status, usage.UsageID)
		}
		fmt.Fprintf(out, "  Requested:   %s\n", dto.RequestTime.Format("2006-01-02 15:04:05"))
		if dto.CompleteTime != nil {
			fmt.Fprintf(out, "  Completed:   %s\n", dto.CompleteTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	txnCmd.AddCommand(txnShowCmd)
	rootCmd.AddCommand(txnCmd)
}
