// Package sagatest wires the subscription saga against SQLite and the
// in-process gateway simulators for tests.
package sagatest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	customerDomain "github.com/felixgeelhaar/fundsaga/internal/customer/domain"
	customerPersistence "github.com/felixgeelhaar/fundsaga/internal/customer/infrastructure/persistence"
	"github.com/felixgeelhaar/fundsaga/internal/integration/coupon"
	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	marketingPersistence "github.com/felixgeelhaar/fundsaga/internal/marketing/infrastructure/persistence"
	productDomain "github.com/felixgeelhaar/fundsaga/internal/product/domain"
	productPersistence "github.com/felixgeelhaar/fundsaga/internal/product/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/persistence"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/quota"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/serial"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Fixture identifiers seeded by New.
const (
	ProductCNY    = "000001"
	ProductUSD    = "000002"
	CustomerID    = "C001"
	AccountNumber = "6222000011112222"
	CouponHalf    = "CP50"
	CouponFixed20 = "CP20"
)

// Venue is the trading venue time zone used by the harness.
var Venue = time.FixedZone("CST", 8*60*60)

// InWindow and AfterHours are clock readings inside and outside the trading window.
var (
	InWindow   = time.Date(2026, 3, 2, 10, 0, 0, 0, Venue)
	AfterHours = time.Date(2026, 3, 2, 20, 0, 0, 0, Venue)
)

// Options tune the harness.
type Options struct {
	Clock              time.Time
	InlineCompensation bool
	MaxAttempts        int
	BreakerThreshold   uint32
}

// Harness is a fully wired saga.
type Harness struct {
	Conn         database.Connection
	Transactions *persistence.TransactionRepository
	Shares       *persistence.ShareRepository
	Products     *productPersistence.ProductRepository
	Accounts     *customerPersistence.AccountRepository
	Usages       *marketingPersistence.UsageRepository
	Quota        *quota.SQLCounter
	Outbox       *outbox.SQLRepository
	Ledger       *ledger.Simulator
	Coupons      *coupon.Simulator
	Breakers     *resilience.Registry
	Metrics      *observability.InMemoryMetrics
	Store        *services.TransactionStore
	Engine       *services.CompensationEngine
	Reconciler   *services.Reconciler
	Accounting   *services.AccountingService
	Validator    *services.SubscriptionValidator
	Fees         *services.FeeService
	Handler      *commands.ProcessSubscriptionHandler
	Logger       *slog.Logger
	// Deps and Config built Handler; copy them to wire a variant.
	Deps   commands.ProcessSubscriptionDeps
	Config commands.ProcessSubscriptionConfig
}

// New builds a harness with seeded products, a customer and two coupons.
func New(t testing.TB, opts Options) *Harness {
	t.Helper()
	if opts.Clock.IsZero() {
		opts.Clock = InWindow
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 100
	}

	conn := dbtest.NewConnection(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewInMemoryMetrics()

	breakerCfg := resilience.DefaultConfig()
	breakerCfg.FailureThreshold = opts.BreakerThreshold
	breakerCfg.Timeout = time.Minute
	breakerCfg.CallTimeout = 2 * time.Second
	breakers := resilience.NewRegistry(breakerCfg, logger, metrics)

	h := &Harness{
		Conn:         conn,
		Transactions: persistence.NewTransactionRepository(conn),
		Shares:       persistence.NewShareRepository(conn),
		Products:     productPersistence.NewProductRepository(conn),
		Accounts:     customerPersistence.NewAccountRepository(conn),
		Usages:       marketingPersistence.NewUsageRepository(conn),
		Quota:        quota.NewSQLCounter(conn),
		Outbox:       outbox.NewSQLRepository(conn),
		Ledger:       ledger.NewSimulator(),
		Coupons:      coupon.NewSimulator(),
		Breakers:     breakers,
		Metrics:      metrics,
		Logger:       logger,
	}

	clock := func() time.Time { return opts.Clock }
	window := Window()

	h.Store = services.NewTransactionStore(h.Transactions, h.Outbox, database.NewUnitOfWork(conn))
	h.Engine = services.NewCompensationEngine(h.Ledger, h.Coupons, h.Usages, breakers, logger, metrics)
	h.Validator = services.NewSubscriptionValidator(h.Products, h.Accounts, h.Transactions, h.Quota, Venue).WithClock(clock)
	h.Reconciler = services.NewReconciler(h.Store, h.Engine, opts.MaxAttempts, logger, metrics).WithQuotaRelease(h.Validator)
	h.Accounting = services.NewAccountingService(h.Ledger, breakers, window, logger).WithClock(clock)
	h.Fees = services.NewFeeService(h.Coupons, breakers)

	generator, err := serial.NewGenerator(1)
	require.NoError(t, err)

	h.Deps = commands.ProcessSubscriptionDeps{
		Serials:    generator,
		Validator:  h.Validator,
		Fees:       h.Fees,
		Accounting: h.Accounting,
		Store:      h.Store,
		Shares:     h.Shares,
		Usages:     h.Usages,
		Coupons:    h.Coupons,
		Breakers:   breakers,
		Reconciler: h.Reconciler,
		Logger:     logger,
		Metrics:    metrics,
	}
	h.Config = commands.ProcessSubscriptionConfig{InlineCompensation: opts.InlineCompensation}
	h.Handler = commands.NewProcessSubscriptionHandler(h.Deps, h.Config)

	h.seed(t)
	return h
}

func (h *Harness) seed(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []*productDomain.FundProduct{
		{
			Code:                ProductCNY,
			Name:                "Balanced Growth",
			Status:              productDomain.StatusActive,
			TradingStatus:       productDomain.TradingAll,
			RiskLevel:           3,
			CurrencyCode:        "CNY",
			MinInitialAmount:    sharedDomain.MustMoney("1000", "CNY"),
			MinAdditionalAmount: sharedDomain.MustMoney("100", "CNY"),
			DailyQuota:          sharedDomain.MustMoney("1000000", "CNY"),
			AllowedChannels:     []string{"WEB", "APP"},
			SubscriptionFeeRate: decimal.RequireFromString("0.015"),
		},
		{
			Code:                ProductUSD,
			Name:                "Global Bond",
			Status:              productDomain.StatusActive,
			TradingStatus:       productDomain.TradingAll,
			RiskLevel:           2,
			CurrencyCode:        "USD",
			MinInitialAmount:    sharedDomain.MustMoney("100", "USD"),
			MinAdditionalAmount: sharedDomain.MustMoney("10", "USD"),
			DailyQuota:          sharedDomain.MustMoney("1000000", "USD"),
			SubscriptionFeeRate: decimal.RequireFromString("0.01"),
		},
	} {
		require.NoError(t, h.Products.Save(ctx, p))
	}

	require.NoError(t, h.Accounts.Save(ctx, &customerDomain.Account{
		CustomerID:    CustomerID,
		Name:          "Li Wei",
		Type:          customerDomain.CustomerIndividual,
		AccountNumber: AccountNumber,
		CurrencyCode:  "CNY",
		Status:        customerDomain.AccountActive,
		RiskTolerance: 4,
	}))

	half := decimal.RequireFromString("0.5")
	twenty := decimal.NewFromInt(20)
	h.Coupons.AddCoupon(marketingDomain.CouponInfo{CouponID: CouponHalf, Type: marketingDomain.CouponPercentage, DiscountRate: &half})
	h.Coupons.AddCoupon(marketingDomain.CouponInfo{CouponID: CouponFixed20, Type: marketingDomain.CouponFixed, DiscountAmount: &twenty})
}

// Subscribe runs a subscription for the seeded customer.
func (h *Harness) Subscribe(ctx context.Context, product, amount, currency, couponID string) (*commands.SubscriptionResult, error) {
	return h.Handler.Handle(ctx, commands.ProcessSubscriptionCommand{
		CustomerID:    CustomerID,
		AccountNumber: AccountNumber,
		ProductCode:   product,
		Amount:        sharedDomain.MustMoney(amount, currency),
		Channel:       "WEB",
		CouponID:      couponID,
	})
}

// QuotaUsed returns the quota consumed for product on the harness day.
func (h *Harness) QuotaUsed(t testing.TB, product string) int64 {
	t.Helper()
	used, err := h.Quota.Used(context.Background(), product, QuotaDay())
	require.NoError(t, err)
	return used
}

// Window is the trading window used by the harness.
func Window() services.TradingWindow {
	return services.TradingWindow{Start: 9 * time.Hour, End: 15 * time.Hour, Location: Venue}
}

// QuotaDay is the quota key for the harness clock.
func QuotaDay() string {
	return InWindow.Format("2006-01-02")
}
