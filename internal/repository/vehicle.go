package repository

import (
	"context"

	"scootr/internal/domain"
)

// VehicleRepository defines the persistence operations for vehicles.
// Reads report availability derived from active rides.
type VehicleRepository interface {
	// Create adds a new vehicle.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// ListByIDs retrieves the vehicles with the given IDs. Unknown IDs are skipped.
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Vehicle, error)

	// UpdateTelemetry sets the battery level and/or location. Nil fields are left as is.
	UpdateTelemetry(ctx context.Context, id string, batteryLevel *int, location *domain.Location) error
}
