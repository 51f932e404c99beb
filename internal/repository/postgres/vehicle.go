package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// Create adds a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	query := `INSERT INTO vehicles (id, battery_level, longitude, latitude) VALUES ($1, $2, $3, $4)`

	_, err := r.q.ExecContext(ctx, query, v.ID, v.BatteryLevel, v.Location.Longitude, v.Location.Latitude)
	if _, ok := uniqueViolation(err); ok {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a vehicle with its derived availability.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT id, battery_level, longitude, latitude, available FROM v_vehicles WHERE id = $1`

	var v domain.Vehicle
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.BatteryLevel,
		&v.Location.Longitude,
		&v.Location.Latitude,
		&v.Available,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &v, nil
}

// ListByIDs retrieves the vehicles with the given IDs.
func (r *VehicleRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Vehicle, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, battery_level, longitude, latitude, available FROM v_vehicles WHERE id = ANY($1)`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.BatteryLevel, &v.Location.Longitude, &v.Location.Latitude, &v.Available); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, &v)
	}
	return vehicles, rows.Err()
}

// UpdateTelemetry sets the battery level and/or location.
func (r *VehicleRepository) UpdateTelemetry(ctx context.Context, id string, batteryLevel *int, location *domain.Location) error {
	query := `
		UPDATE vehicles
		SET battery_level = COALESCE($1, battery_level),
		    longitude = COALESCE($2, longitude),
		    latitude = COALESCE($3, latitude),
		    updated_at = NOW()
		WHERE id = $4
	`

	var battery sql.NullInt64
	if batteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*batteryLevel), Valid: true}
	}
	var lng, lat sql.NullFloat64
	if location != nil {
		lng = sql.NullFloat64{Float64: location.Longitude, Valid: true}
		lat = sql.NullFloat64{Float64: location.Latitude, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query, battery, lng, lat, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}
