package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SerialNodeLease asks the serial generator to lease its node id from Redis.
const SerialNodeLease = -1

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string
	Version  string

	// Database. An empty DatabaseURL selects local SQLite mode.
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string

	// Redis backs the daily quota and the serial node lease. Empty falls
	// back to the SQL quota counter and SerialNodeID.
	RedisURL string

	// RabbitMQ receives saga events from the outbox. Empty keeps events in process.
	RabbitMQURL      string
	RabbitMQExchange string

	// HTTP
	HTTPAddr         string
	WorkerHealthAddr string

	// MCP exposes the saga tools to agents.
	MCPAddr      string
	MCPAuthToken string

	// External systems
	GatewaySimulator bool
	CoreBankingURL   string
	MarketingURL     string
	GatewayTimeout   time.Duration

	// Circuit breakers
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
	BreakerCallTimeout      time.Duration

	// Trading window, as clock times in TradingTimezone
	TradingWindowStart string
	TradingWindowEnd   string
	TradingTimezone    string

	// Saga
	SerialNodeID            int
	InlineCompensation      bool
	CompensationMaxAttempts int

	// Recovery
	RecoveryEnabled        bool
	RecoveryInterval       time.Duration
	RecoveryStuckThreshold time.Duration
	RecoveryBatchSize      int
	RecoveryConcurrency    int

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Version:  getEnv("APP_VERSION", "dev"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", ""),
		SQLitePath:     getEnv("SQLITE_PATH", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "fundsaga.events"),

		HTTPAddr:         getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		MCPAddr:          getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken:     getEnv("MCP_AUTH_TOKEN", ""),

		GatewaySimulator: getBoolEnv("GATEWAY_SIMULATOR", true),
		CoreBankingURL:   getEnv("CORE_BANKING_URL", "http://localhost:9101"),
		MarketingURL:     getEnv("MARKETING_URL", "http://localhost:9102"),
		GatewayTimeout:   getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),

		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:      getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		BreakerCallTimeout:      getDurationEnv("BREAKER_CALL_TIMEOUT", 10*time.Second),

		TradingWindowStart: getEnv("TRADING_WINDOW_START", "09:00"),
		TradingWindowEnd:   getEnv("TRADING_WINDOW_END", "15:00"),
		TradingTimezone:    getEnv("TRADING_TIMEZONE", "Asia/Shanghai"),

		SerialNodeID:            getIntEnv("SERIAL_NODE_ID", SerialNodeLease),
		InlineCompensation:      getBoolEnv("INLINE_COMPENSATION", true),
		CompensationMaxAttempts: getIntEnv("COMPENSATION_MAX_ATTEMPTS", 10),

		RecoveryEnabled:        getBoolEnv("RECOVERY_ENABLED", true),
		RecoveryInterval:       getDurationEnv("RECOVERY_INTERVAL", 5*time.Minute),
		RecoveryStuckThreshold: getDurationEnv("RECOVERY_STUCK_THRESHOLD", 10*time.Minute),
		RecoveryBatchSize:      getIntEnv("RECOVERY_BATCH_SIZE", 100),
		RecoveryConcurrency:    getIntEnv("RECOVERY_CONCURRENCY", 4),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 7),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),
	}

	if cfg.DatabaseDriver == "" {
		if cfg.DatabaseURL == "" {
			cfg.DatabaseDriver = "sqlite"
		} else {
			cfg.DatabaseDriver = "auto"
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsLocalMode reports whether the service runs on a local SQLite file.
func (c *Config) IsLocalMode() bool {
	return c.DatabaseDriver == "sqlite"
}

// LeasesSerialNode reports whether the serial node id comes from Redis.
func (c *Config) LeasesSerialNode() bool {
	return c.SerialNodeID == SerialNodeLease && c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
