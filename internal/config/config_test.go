package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(100), cfg.Ride.FixedCost)
	assert.Equal(t, int64(20), cfg.Ride.PerMinuteRate)
	assert.Equal(t, int64(500), cfg.Ride.MinBalanceToStart)
	assert.Equal(t, 10*time.Second, cfg.Ride.StartLockTTL)
	assert.Equal(t, 3, cfg.Database.TxMaxRetries)
	assert.Equal(t, int64(1), cfg.Stripe.AmountScale)
	assert.Empty(t, cfg.OTel.Endpoint)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RIDE_FIXED_COST", "1.50")
	t.Setenv("RIDE_COST_PER_MINUTE", "0.35")
	t.Setenv("WALLET_MIN_BALANCE_TO_START_RIDE", "10")
	t.Setenv("RIDE_START_LOCK_TTL", "3s")
	t.Setenv("LEDGER_CONDITIONAL_RETRIES", "7")
	t.Setenv("STRIPE_AMOUNT_SCALE", "100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(150), cfg.Ride.FixedCost)
	assert.Equal(t, int64(35), cfg.Ride.PerMinuteRate)
	assert.Equal(t, int64(1000), cfg.Ride.MinBalanceToStart)
	assert.Equal(t, 3*time.Second, cfg.Ride.StartLockTTL)
	assert.Equal(t, 7, cfg.Ledger.ConditionalCreditRetries)
	assert.Equal(t, int64(100), cfg.Stripe.AmountScale)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns, "malformed ints fall back to the default")
}

func TestLoad_RejectsBadMoney(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("RIDE_FIXED_COST", "1.005")
	_, err := Load()
	assert.ErrorContains(t, err, "RIDE_FIXED_COST")

	t.Setenv("RIDE_FIXED_COST", "-1")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("RIDE_FIXED_COST", "1.00")
	t.Setenv("STRIPE_AMOUNT_SCALE", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "STRIPE_AMOUNT_SCALE")
}
