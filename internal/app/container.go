// Package app wires the fundsaga services from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

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
	_ "github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/handlers"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/workers"
	tradingDomain "github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/persistence"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/quota"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/serial"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	DBConn      database.Connection
	DBDriver    database.Driver
	RedisClient *redis.Client

	// Observability
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// External systems
	Breakers        *resilience.Registry
	Ledger          ledger.Gateway
	Coupons         coupon.Gateway
	LedgerSimulator *ledger.Simulator
	CouponSimulator *coupon.Simulator

	// Repositories
	TransactionRepo *persistence.TransactionRepository
	ShareRepo       *persistence.ShareRepository
	ProductRepo     *productPersistence.ProductRepository
	AccountRepo     *customerPersistence.AccountRepository
	UsageRepo       *marketingPersistence.UsageRepository
	OutboxRepo      *outbox.SQLRepository
	Quota           tradingDomain.QuotaCounter
	Serials         *serial.Generator

	// Events
	EventPublisher eventbus.Publisher
	EventBus       *eventbus.InProcessBus

	// Saga services
	TradingWindow      services.TradingWindow
	TransactionStore   *services.TransactionStore
	CompensationEngine *services.CompensationEngine
	Reconciler         *services.Reconciler
	AccountingService  *services.AccountingService
	Validator          *services.SubscriptionValidator
	FeeService         *services.FeeService

	// Command and query handlers
	ProcessSubscriptionHandler *commands.ProcessSubscriptionHandler
	GetTransactionHandler      *queries.GetTransactionHandler

	// Background workers
	OutboxProcessor *outbox.Processor
	RecoveryWorker  *workers.RecoveryWorker
}

// NewContainer connects to the configured backends and builds every service.
// An empty DATABASE_URL runs on a local SQLite file; without Redis the quota
// lives in the database and the serial node id comes from configuration.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initSerials(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPublisher(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initSaga(); err != nil {
		c.Close()
		return nil, err
	}
	c.initWorkers()
	c.registerHealthChecks()

	logger.Info("container initialized",
		"driver", c.DBDriver.String(),
		"redis", c.RedisClient != nil,
		"simulators", cfg.GatewaySimulator,
		"serial_node", c.Serials.NodeID(),
	)
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	driver := database.Driver(c.Config.DatabaseDriver)
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     driver,
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Logger.Info("connected to database", "driver", c.DBDriver.String())
	return nil
}

// initRedis connects when REDIS_URL is set. In development an unreachable
// Redis degrades to the database-backed fallbacks.
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, quota falls back to the database", "error", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, quota falls back to the database", "error", err)
		return nil
	}
	c.RedisClient = client
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initSerials(ctx context.Context) error {
	nodeID := c.Config.SerialNodeID
	if nodeID == config.SerialNodeLease {
		if c.RedisClient == nil {
			nodeID = 0
			c.Logger.Warn("no Redis to lease a serial node id, using node 0")
		} else {
			leased, err := serial.LeaseNodeID(ctx, c.RedisClient, "")
			if err != nil {
				return err
			}
			nodeID = leased
		}
	}
	generator, err := serial.NewGenerator(nodeID)
	if err != nil {
		return fmt.Errorf("failed to create serial generator: %w", err)
	}
	c.Serials = generator
	return nil
}

// initPublisher selects RabbitMQ when configured. Otherwise, and in
// development when the broker is unreachable, events are dispatched in process.
func (c *Container) initPublisher() error {
	if c.Config.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Config.RabbitMQExchange, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			return nil
		}
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, dispatching events in process", "error", err)
	}

	bus := eventbus.NewInProcessBus(c.Logger)
	bus.Register(handlers.NewSagaEventLogger(c.Logger))
	c.EventBus = bus
	c.EventPublisher = bus
	return nil
}

func (c *Container) initSaga() error {
	cfg := c.Config
	conn := c.DBConn

	window, err := services.ParseTradingWindow(cfg.TradingWindowStart, cfg.TradingWindowEnd, cfg.TradingTimezone)
	if err != nil {
		return err
	}
	c.TradingWindow = window

	c.Breakers = resilience.NewRegistry(resilience.Config{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          cfg.BreakerOpenTimeout,
		FailureThreshold: uint32(max(cfg.BreakerFailureThreshold, 1)),
		CallTimeout:      cfg.BreakerCallTimeout,
	}, c.Logger, c.Metrics)

	if cfg.GatewaySimulator {
		c.LedgerSimulator = ledger.NewSimulator()
		c.CouponSimulator = coupon.NewSimulator()
		c.Ledger = c.LedgerSimulator
		c.Coupons = c.CouponSimulator
	} else {
		c.Ledger = ledger.NewHTTPClient(cfg.CoreBankingURL, cfg.GatewayTimeout)
		c.Coupons = coupon.NewHTTPClient(cfg.MarketingURL, cfg.GatewayTimeout)
	}

	c.TransactionRepo = persistence.NewTransactionRepository(conn)
	c.ShareRepo = persistence.NewShareRepository(conn)
	c.ProductRepo = productPersistence.NewProductRepository(conn)
	c.AccountRepo = customerPersistence.NewAccountRepository(conn)
	c.UsageRepo = marketingPersistence.NewUsageRepository(conn)
	c.OutboxRepo = outbox.NewSQLRepository(conn)
	if c.RedisClient != nil {
		c.Quota = quota.NewRedisCounter(c.RedisClient, "")
	} else {
		c.Quota = quota.NewSQLCounter(conn)
	}

	c.TransactionStore = services.NewTransactionStore(c.TransactionRepo, c.OutboxRepo, database.NewUnitOfWork(conn))
	c.CompensationEngine = services.NewCompensationEngine(c.Ledger, c.Coupons, c.UsageRepo, c.Breakers, c.Logger, c.Metrics)
	c.Validator = services.NewSubscriptionValidator(c.ProductRepo, c.AccountRepo, c.TransactionRepo, c.Quota, window.Location)
	c.Reconciler = services.NewReconciler(c.TransactionStore, c.CompensationEngine, cfg.CompensationMaxAttempts, c.Logger, c.Metrics).
		WithQuotaRelease(c.Validator)
	c.AccountingService = services.NewAccountingService(c.Ledger, c.Breakers, window, c.Logger)
	c.FeeService = services.NewFeeService(c.Coupons, c.Breakers)

	c.ProcessSubscriptionHandler = commands.NewProcessSubscriptionHandler(commands.ProcessSubscriptionDeps{
		Serials:    c.Serials,
		Validator:  c.Validator,
		Fees:       c.FeeService,
		Accounting: c.AccountingService,
		Store:      c.TransactionStore,
		Shares:     c.ShareRepo,
		Usages:     c.UsageRepo,
		Coupons:    c.Coupons,
		Breakers:   c.Breakers,
		Reconciler: c.Reconciler,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
	}, commands.ProcessSubscriptionConfig{InlineCompensation: cfg.InlineCompensation})
	c.GetTransactionHandler = queries.NewGetTransactionHandler(c.TransactionRepo, c.UsageRepo)
	return nil
}

func (c *Container) initWorkers() {
	cfg := c.Config
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		MaxRetries:       cfg.OutboxMaxRetries,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		Retention:        time.Duration(cfg.OutboxRetentionDays) * 24 * time.Hour,
		CleanupInterval:  cfg.OutboxCleanupInterval,
	}, c.Logger).WithMetrics(c.Metrics)

	c.RecoveryWorker = workers.NewRecoveryWorker(c.TransactionRepo, c.Reconciler, workers.RecoveryConfig{
		Interval:       cfg.RecoveryInterval,
		StuckThreshold: cfg.RecoveryStuckThreshold,
		BatchSize:      cfg.RecoveryBatchSize,
		Concurrency:    cfg.RecoveryConcurrency,
	}, c.Logger, c.Metrics)
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", observability.DatabaseHealthChecker(c.DBConn.Ping))
	if c.RedisClient != nil {
		client := c.RedisClient
		c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if publisher, ok := c.EventPublisher.(*eventbus.RabbitMQPublisher); ok {
		c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Ping))
	}
	c.Health.Register("breakers", observability.BreakerHealthChecker(c.Breakers.OpenBreakers))
}

// StartWorkers starts the outbox processor and the recovery worker when
// they are enabled.
func (c *Container) StartWorkers(ctx context.Context) error {
	if c.Config.OutboxProcessorEnabled {
		if err := c.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
	}
	if c.Config.RecoveryEnabled {
		if err := c.RecoveryWorker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start recovery worker: %w", err)
		}
	}
	return nil
}

// Close stops the workers and releases every connection. It is safe to
// call more than once.
func (c *Container) Close() {
	if c.RecoveryWorker != nil && c.RecoveryWorker.IsRunning() {
		c.RecoveryWorker.Stop()
	}
	if c.OutboxProcessor != nil && c.OutboxProcessor.IsRunning() {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
		c.EventPublisher = nil
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
		c.RedisClient = nil
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver.String())
		}
		c.DBConn = nil
	}
}

// Demo fixture identifiers written by SeedDemoData.
const (
	DemoProductCNY    = "000001"
	DemoProductUSD    = "000002"
	DemoCustomerID    = "C001"
	DemoAccountNumber = "6222000011112222"
	DemoCouponHalf    = "CP50"
	DemoCouponFixed20 = "CP20"
)

// SeedDemoData upserts two products and one customer, and registers two
// coupons with the marketing simulator when it is in use.
func (c *Container) SeedDemoData(ctx context.Context) error {
	maxCNY := sharedDomain.MustMoney("5000000", "CNY")
	products := []*productDomain.FundProduct{
		{
			Code:                DemoProductCNY,
			Name:                "Balanced Growth",
			Status:              productDomain.StatusActive,
			TradingStatus:       productDomain.TradingAll,
			RiskLevel:           3,
			CurrencyCode:        "CNY",
			MinInitialAmount:    sharedDomain.MustMoney("1000", "CNY"),
			MinAdditionalAmount: sharedDomain.MustMoney("100", "CNY"),
			MaxSubscription:     &maxCNY,
			DailyQuota:          sharedDomain.MustMoney("10000000", "CNY"),
			AllowedChannels:     []string{"WEB", "APP"},
			SubscriptionFeeRate: decimal.RequireFromString("0.015"),
		},
		{
			Code:                DemoProductUSD,
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
	}
	for _, p := range products {
		if err := c.ProductRepo.Save(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Code, err)
		}
	}

	if err := c.AccountRepo.Save(ctx, &customerDomain.Account{
		CustomerID:    DemoCustomerID,
		Name:          "Li Wei",
		Type:          customerDomain.CustomerIndividual,
		AccountNumber: DemoAccountNumber,
		CurrencyCode:  "CNY",
		Status:        customerDomain.AccountActive,
		RiskTolerance: 4,
	}); err != nil {
		return fmt.Errorf("seed account: %w", err)
	}

	if c.CouponSimulator != nil {
		half := decimal.RequireFromString("0.5")
		twenty := decimal.NewFromInt(20)
		c.CouponSimulator.AddCoupon(marketingDomain.CouponInfo{CouponID: DemoCouponHalf, Type: marketingDomain.CouponPercentage, DiscountRate: &half})
		c.CouponSimulator.AddCoupon(marketingDomain.CouponInfo{CouponID: DemoCouponFixed20, Type: marketingDomain.CouponFixed, DiscountAmount: &twenty})
	}

	c.Logger.Info("demo data seeded", "products", len(products), "customer_id", DemoCustomerID)
	return nil
}
