package service

import (
	"fmt"
	"time"
)

// RideConfig holds the tariff and the start policy, all in minor units.
type RideConfig struct {
	FixedCost         int64
	PerMinuteRate     int64
	MinBalanceToStart int64

	// StartLockTTL bounds the optional per-user start lock.
	StartLockTTL time.Duration
}

// DefaultRideConfig is 1.00 to unlock, 0.20 per minute and a 5.00 minimum
// balance to start.
func DefaultRideConfig() RideConfig {
	return RideConfig{
		FixedCost:         100,
		PerMinuteRate:     20,
		MinBalanceToStart: 500,
		StartLockTTL:      10 * time.Second,
	}
}

// CalculateFare charges the fixed cost plus every completed minute.
// Partial minutes are not charged. A fare below the fixed cost (end before
// start) is an error rather than an undercharge.
func CalculateFare(cfg RideConfig, start, end time.Time) (int64, error) {
	elapsed := end.Sub(start)
	minutes := int64(elapsed / time.Minute)

	amount := cfg.FixedCost + minutes*cfg.PerMinuteRate
	if amount < cfg.FixedCost {
		return 0, fmt.Errorf("%w (ride %s long)", ErrFareBelowFixedCost, elapsed)
	}

	return amount, nil
}
