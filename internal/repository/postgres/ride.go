package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

// Partial unique indexes guarding active rides.
const (
	constraintActivePerUser    = "rides_one_active_per_user"
	constraintActivePerVehicle = "rides_one_active_per_vehicle"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

const rideColumns = `id, user_id, vehicle_id, wallet_id, start_time, end_time,
	start_longitude, start_latitude, end_longitude, end_latitude, amount`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, user_id, vehicle_id, wallet_id, start_time, start_longitude, start_latitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.UserID,
		ride.VehicleID,
		ride.WalletID,
		ride.StartTime,
		ride.StartLocation.Longitude,
		ride.StartLocation.Latitude,
	)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintActivePerUser:
			return repository.ErrUserHasActiveRide
		case constraintActivePerVehicle:
			return repository.ErrVehicleInUse
		default:
			return repository.ErrDuplicate
		}
	}

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM v_rides WHERE id = $1`, id)
}

// GetForUpdate retrieves a ride and locks its row. A concurrent end of the
// same ride blocks here until the first one commits.
func (r *RideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id)
}

// GetActiveByUser retrieves the user's active ride.
func (r *RideRepository) GetActiveByUser(ctx context.Context, userID string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM v_rides WHERE user_id = $1 AND end_time IS NULL`, userID)
}

func (r *RideRepository) getOne(ctx context.Context, query, arg string) (*domain.Ride, error) {
	ride, err := scanRide(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// Close sets the end fields of an active ride.
func (r *RideRepository) Close(ctx context.Context, id string, endTime time.Time, endLocation domain.Location, amount int64) error {
	query := `
		UPDATE rides
		SET end_time = $1, end_longitude = $2, end_latitude = $3, amount = $4
		WHERE id = $5 AND end_time IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, endTime, endLocation.Longitude, endLocation.Latitude, amount, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrRideClosed
	}

	return nil
}

// ListByUser retrieves a user's rides, newest first.
func (r *RideRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM v_rides WHERE user_id = $1 ORDER BY start_time DESC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var endTime sql.NullTime
	var endLng, endLat sql.NullFloat64
	var amount sql.NullInt64

	err := row.Scan(
		&ride.ID,
		&ride.UserID,
		&ride.VehicleID,
		&ride.WalletID,
		&ride.StartTime,
		&endTime,
		&ride.StartLocation.Longitude,
		&ride.StartLocation.Latitude,
		&endLng,
		&endLat,
		&amount,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		t := endTime.Time
		ride.EndTime = &t
	}
	if endLng.Valid && endLat.Valid {
		ride.EndLocation = &domain.Location{Longitude: endLng.Float64, Latitude: endLat.Float64}
	}
	if amount.Valid {
		a := amount.Int64
		ride.Amount = &a
	}

	return &ride, nil
}

// WaypointRepository is a PostgreSQL implementation of repository.WaypointRepository.
type WaypointRepository struct {
	q Querier
}

// InsertBatch appends waypoints.
func (r *WaypointRepository) InsertBatch(ctx context.Context, waypoints []*domain.RideWaypoint) error {
	query := `INSERT INTO ride_waypoints (id, ride_id, longitude, latitude, ts) VALUES ($1, $2, $3, $4, $5)`

	for _, wp := range waypoints {
		if _, err := r.q.ExecContext(ctx, query, wp.ID, wp.RideID, wp.Location.Longitude, wp.Location.Latitude, wp.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// ListByRide retrieves a ride's waypoints ordered by timestamp.
func (r *WaypointRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.RideWaypoint, error) {
	query := `SELECT id, ride_id, longitude, latitude, ts FROM ride_waypoints WHERE ride_id = $1 ORDER BY ts, id`

	rows, err := r.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var waypoints []*domain.RideWaypoint
	for rows.Next() {
		var wp domain.RideWaypoint
		if err := rows.Scan(&wp.ID, &wp.RideID, &wp.Location.Longitude, &wp.Location.Latitude, &wp.Timestamp); err != nil {
			return nil, err
		}
		waypoints = append(waypoints, &wp)
	}
	return waypoints, rows.Err()
}
