package redis

import (
	"context"
	"time"

	"scootr/internal/domain"
)

// LocationStoreInterface defines the interface for vehicle location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, vehicleID string, loc domain.Location) error
	FindNearbyVehicles(ctx context.Context, center domain.Location, radiusMeters float64) ([]VehicleLocation, error)
	RemoveLocation(ctx context.Context, vehicleID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireRideStartLock(ctx context.Context, userID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseRideStartLock(ctx context.Context, userID, token string) error
}

// EventStoreInterface records which provider events were already reconciled.
type EventStoreInterface interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// ResponseStoreInterface stores replayable responses for idempotent requests.
type ResponseStoreInterface interface {
	Lookup(ctx context.Context, key string) (data []byte, pending bool, err error)
	Reserve(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Release(ctx context.Context, key string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ EventStoreInterface    = (*EventStore)(nil)
	_ ResponseStoreInterface = (*ResponseStore)(nil)
)
