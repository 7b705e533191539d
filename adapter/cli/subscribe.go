package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fundsaga/adapter/api"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
)

var (
	subCustomer string
	subAccount  string
	subProduct  string
	subCurrency string
	subChannel  string
	subCoupon   string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [amount]",
	Short: "Subscribe to a fund product",
	Long: `Run one subscription through the saga and print the outcome.

Examples:
  fundsaga subscribe 10000 --customer C001 --account 6222000011112222 --product 000001
  fundsaga subscribe 10000 --customer C001 --account 6222000011112222 --product 000001 --coupon CP50
  fundsaga subscribe 250 --currency USD --product 000002 --customer C001 --account 6222000011112222`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		amount, err := sharedDomain.ParseMoney(args[0], subCurrency)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}

		result, runErr := app.Subscriptions.Handle(cmd.Context(), commands.ProcessSubscriptionCommand{
			CustomerID:    subCustomer,
			AccountNumber: subAccount,
			ProductCode:   subProduct,
			Amount:        amount,
			Channel:       subChannel,
			CouponID:      subCoupon,
		})

		out := cmd.OutOrStdout()
		if result != nil {
			if outputJSON {
				if err := printJSON(out, api.ResponseFromResult(result)); err != nil {
					return err
				}
			} else {
				printResult(out, result)
			}
		}
		if runErr != nil {
			appErr := sharedDomain.Classify(runErr)
			return fmt.Errorf("subscription failed [%s]: %s", appErr.Code, appErr.Message)
		}
		return nil
	},
}

func printResult(out io.Writer, result *commands.SubscriptionResult) {
	fmt.Fprintf(out, "Subscription: %s\n", result.SerialNumber)
	fmt.Fprintf(out, "  Status:      %s\n", result.Status)
	fmt.Fprintf(out, "  Saga:        %s\n", result.SagaState)
	if result.AccountingType.String() != "" {
		fmt.Fprintf(out, "  Accounting:  %s\n", result.AccountingType)
	}
	if result.Amount.Currency() != "" {
		fmt.Fprintf(out, "  Amount:      %s\n", result.Amount)
	}
	if result.FinalFee.Currency() != "" {
		fmt.Fprintf(out, "  Fee:         %s (discount %s)\n", result.FinalFee, result.Discount)
		fmt.Fprintf(out, "  Deducted:    %s\n", result.TotalDeduction)
	}
	if result.ErrorCode != "" {
		fmt.Fprintf(out, "  Error:       %s %s\n", result.ErrorCode, result.ErrorMessage)
	}
}

func init() {
	subscribeCmd.Flags().StringVar(&subCustomer, "customer", "", "customer id")
	subscribeCmd.Flags().StringVar(&subAccount, "account", "", "account number to debit")
	subscribeCmd.Flags().StringVar(&subProduct, "product", "", "fund product code")
	subscribeCmd.Flags().StringVar(&subCurrency, "currency", "CNY", "amount currency")
	subscribeCmd.Flags().StringVar(&subChannel, "channel", "WEB", "sales channel")
	subscribeCmd.Flags().StringVar(&subCoupon, "coupon", "", "coupon id to apply")
	_ = subscribeCmd.MarkFlagRequired("customer")
	_ = subscribeCmd.MarkFlagRequired("account")
	_ = subscribeCmd.MarkFlagRequired("product")

	rootCmd.AddCommand(subscribeCmd)
}
