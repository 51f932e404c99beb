package repository

import (
	"context"
	"time"

	"scootr/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	// Returns ErrUserHasActiveRide or ErrVehicleInUse when the partial unique
	// indexes on active rides reject the row.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetForUpdate retrieves a ride and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// Close sets the end fields of an active ride.
	// Returns ErrRideClosed if the ride already has an end time.
	Close(ctx context.Context, id string, endTime time.Time, endLocation domain.Location, amount int64) error

	// GetActiveByUser retrieves the user's active ride.
	// Returns ErrNotFound if the user has none.
	GetActiveByUser(ctx context.Context, userID string) (*domain.Ride, error)

	// ListByUser retrieves a user's rides, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error)
}

// WaypointRepository defines the persistence operations for ride waypoints.
type WaypointRepository interface {
	// InsertBatch appends waypoints.
	InsertBatch(ctx context.Context, waypoints []*domain.RideWaypoint) error

	// ListByRide retrieves a ride's waypoints ordered by timestamp.
	ListByRide(ctx context.Context, rideID string) ([]*domain.RideWaypoint, error)
}
