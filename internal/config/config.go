package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"scootr/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	OTel     OTelConfig
	Ride     RideConfig
	Ledger   LedgerConfig
	Stripe   StripeConfig
	LogLevel slog.Level
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// TxMaxRetries is how often a transaction aborted by a serialization
	// failure or deadlock is re-run.
	TxMaxRetries int
	AutoMigrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// OTelConfig holds OpenTelemetry exporter configuration.
type OTelConfig struct {
	Endpoint    string // host:port; empty disables export
	Insecure    bool
	ServiceName string
}

// RideConfig holds the tariff, in ledger minor units.
type RideConfig struct {
	FixedCost         int64
	PerMinuteRate     int64
	MinBalanceToStart int64
	StartLockTTL      time.Duration
}

// LedgerConfig holds wallet ledger settings.
type LedgerConfig struct {
	ConditionalCreditRetries int
}

// StripeConfig holds payment provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	AmountScale   int64
}

// Load loads configuration from environment variables, after reading a
// .env file if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	fixedCost, err := getMoneyEnv("RIDE_FIXED_COST", "1.00")
	if err != nil {
		return nil, err
	}
	perMinute, err := getMoneyEnv("RIDE_COST_PER_MINUTE", "0.20")
	if err != nil {
		return nil, err
	}
	minBalance, err := getMoneyEnv("WALLET_MIN_BALANCE_TO_START_RIDE", "5.00")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "scootr"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxMaxRetries:    getIntEnv("DB_TX_MAX_RETRIES", 3),
			AutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "scootr"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		OTel: OTelConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "scootr"),
		},
		Ride: RideConfig{
			FixedCost:         fixedCost,
			PerMinuteRate:     perMinute,
			MinBalanceToStart: minBalance,
			StartLockTTL:      getDurationEnv("RIDE_START_LOCK_TTL", 10*time.Second),
		},
		Ledger: LedgerConfig{
			ConditionalCreditRetries: getIntEnv("LEDGER_CONDITIONAL_RETRIES", 5),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_API_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			AmountScale:   int64(getIntEnv("STRIPE_AMOUNT_SCALE", 1)),
		},
		LogLevel: getLevelEnv("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Ride.FixedCost < 0 || c.Ride.PerMinuteRate < 0 || c.Ride.MinBalanceToStart < 0 {
		errs = append(errs, errors.New("ride tariff amounts must not be negative"))
	}
	if c.Stripe.AmountScale < 1 {
		errs = append(errs, errors.New("STRIPE_AMOUNT_SCALE must be at least 1"))
	}
	if c.Database.TxMaxRetries < 0 {
		errs = append(errs, errors.New("DB_TX_MAX_RETRIES must not be negative"))
	}
	if c.Ledger.ConditionalCreditRetries < 0 {
		errs = append(errs, errors.New("LEDGER_CONDITIONAL_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getMoneyEnv reads a decimal amount in major units ("1.50") as minor units.
// Unlike the other helpers it fails on malformed input.
func getMoneyEnv(key, defaultValue string) (int64, error) {
	amount, err := domain.ParseMajorAmount(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return amount, nil
}

func getLevelEnv(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(value))); err != nil {
		return defaultValue
	}
	return level
}
