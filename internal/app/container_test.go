package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/infrastructure/quota"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                  "test",
		DatabaseDriver:          "sqlite",
		SQLitePath:              filepath.Join(t.TempDir(), "fundsaga.db"),
		GatewaySimulator:        true,
		GatewayTimeout:          time.Second,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      time.Minute,
		BreakerCallTimeout:      time.Second,
		TradingWindowStart:      "00:00",
		TradingWindowEnd:        "23:59:59",
		TradingTimezone:         "UTC",
		SerialNodeID:            config.SerialNodeLease,
		InlineCompensation:      true,
		CompensationMaxAttempts: 3,
		RecoveryInterval:        time.Minute,
		RecoveryStuckThreshold:  10 * time.Minute,
		OutboxPollInterval:      10 * time.Millisecond,
		OutboxBatchSize:         10,
		OutboxMaxRetries:        3,
		OutboxRetentionDays:     7,
		OutboxCleanupInterval:   time.Hour,
	}
}

func newContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewContainer_LocalModeWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := localConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	c := newContainer(t, cfg)

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	require.NotNil(t, c.RedisClient)
	assert.IsType(t, &quota.RedisCounter{}, c.Quota)
	assert.Equal(t, 0, c.Serials.NodeID())
	assert.NotNil(t, c.EventBus, "no broker configured keeps events in process")
	assert.NotNil(t, c.LedgerSimulator)

	second := newContainer(t, func() *config.Config {
		other := localConfig(t)
		other.RedisURL = cfg.RedisURL
		return other
	}())
	assert.Equal(t, 1, second.Serials.NodeID(), "each instance leases its own node id")

	health := c.Health.GetOverallHealth(context.Background())
	assert.Equal(t, observability.HealthStatusHealthy, health.Status)
	assert.ElementsMatch(t, []string{"database", "redis", "breakers"}, c.Health.Names())
}

func TestNewContainer_WithoutRedis(t *testing.T) {
	cfg := localConfig(t)
	cfg.SerialNodeID = 7

	c := newContainer(t, cfg)

	assert.Nil(t, c.RedisClient)
	assert.IsType(t, &quota.SQLCounter{}, c.Quota)
	assert.Equal(t, 7, c.Serials.NodeID())
	assert.NotContains(t, c.Health.Names(), "redis")
}

func TestNewContainer_RejectsBadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("trading window", func(t *testing.T) {
		cfg := localConfig(t)
		cfg.TradingWindowStart = "16:00"
		cfg.TradingWindowEnd = "09:00"
		_, err := NewContainer(context.Background(), cfg, logger)
		assert.Error(t, err)
	})

	t.Run("serial node id", func(t *testing.T) {
		cfg := localConfig(t)
		cfg.SerialNodeID = 1000
		_, err := NewContainer(context.Background(), cfg, logger)
		assert.Error(t, err)
	})

	t.Run("unreachable redis outside development", func(t *testing.T) {
		cfg := localConfig(t)
		cfg.AppEnv = "production"
		cfg.RedisURL = "redis://127.0.0.1:1"
		_, err := NewContainer(context.Background(), cfg, logger)
		assert.Error(t, err)
	})
}

func TestContainer_SubscribeEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := localConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	c := newContainer(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.SeedDemoData(ctx))
	require.NoError(t, c.SeedDemoData(ctx), "seeding is repeatable")

	result, err := c.ProcessSubscriptionHandler.Handle(ctx, commands.ProcessSubscriptionCommand{
		CustomerID:    DemoCustomerID,
		AccountNumber: DemoAccountNumber,
		ProductCode:   DemoProductCNY,
		Amount:        sharedDomain.MustMoney("10000", "CNY"),
		Channel:       "WEB",
		CouponID:      DemoCouponHalf,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "75.00", result.FinalFee.StringFixed())

	dto, err := c.GetTransactionHandler.Handle(ctx, queries.GetTransactionQuery{SerialNumber: result.SerialNumber})
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", dto.Status)
	assert.Equal(t, "COMPLETED", dto.SagaState)
	require.Len(t, dto.CouponUsages, 1)

	used, err := c.Quota.(*quota.RedisCounter).Used(ctx, DemoProductCNY, time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), used)

	require.NoError(t, c.OutboxProcessor.ProcessOnce(ctx))
	assert.Equal(t, uint64(1), c.OutboxProcessor.GetStats().PublishedCount)
}

func TestContainer_StartWorkersAndClose(t *testing.T) {
	cfg := localConfig(t)
	cfg.OutboxProcessorEnabled = true
	cfg.RecoveryEnabled = true
	c := newContainer(t, cfg)

	require.NoError(t, c.StartWorkers(context.Background()))
	assert.True(t, c.OutboxProcessor.IsRunning())
	assert.True(t, c.RecoveryWorker.IsRunning())

	c.Close()
	assert.False(t, c.OutboxProcessor.IsRunning())
	assert.False(t, c.RecoveryWorker.IsRunning())
}
