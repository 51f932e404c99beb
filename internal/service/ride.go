package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/redis"
	"scootr/internal/repository"
)

// defaultRidesLimit caps ride history listings.
const defaultRidesLimit = 50

// RideService runs the ride state machine: ACTIVE on start, COMPLETED on end.
type RideService struct {
	db        repository.Database
	ledger    *LedgerService
	locations redis.LocationStoreInterface
	locks     redis.LockStoreInterface
	cfg       RideConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewRideService creates a new RideService. locations and locks are optional.
func NewRideService(
	db repository.Database,
	ledger *LedgerService,
	locations redis.LocationStoreInterface,
	locks redis.LockStoreInterface,
	cfg RideConfig,
	logger *slog.Logger,
	now func() time.Time,
) *RideService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &RideService{
		db:        db,
		ledger:    ledger,
		locations: locations,
		locks:     locks,
		cfg:       cfg,
		now:       now,
		logger:    logger,
	}
}

// StartRideRequest contains the parameters for starting a ride.
type StartRideRequest struct {
	UserID    string
	VehicleID string
	WalletID  string
}

// StartRide creates an active ride for the user on the vehicle.
func (s *RideService) StartRide(ctx context.Context, req StartRideRequest) (*domain.Ride, error) {
	if req.UserID == "" || req.VehicleID == "" || req.WalletID == "" {
		return nil, ErrInvalidID
	}

	// The lock only rejects overlapping starts early. The partial unique
	// index on active rides is what enforces the invariant.
	if s.locks != nil {
		token, acquired, err := s.locks.AcquireRideStartLock(ctx, req.UserID, s.cfg.StartLockTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "ride start lock unavailable", "user_id", req.UserID, "error", err)
		case !acquired:
			return nil, ErrRideStartInProgress
		default:
			defer func() {
				if err := s.locks.ReleaseRideStartLock(context.WithoutCancel(ctx), req.UserID, token); err != nil {
					s.logger.WarnContext(ctx, "release ride start lock", "user_id", req.UserID, "error", err)
				}
			}()
		}
	}

	var ride *domain.Ride
	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		wallet, err := store.Wallets().GetForUpdate(ctx, req.WalletID)
		if err != nil {
			return notFoundAs(err, ErrWalletNotFound)
		}
		if wallet.UserID != req.UserID {
			return ErrNotOwner
		}
		if wallet.Balance < s.cfg.MinBalanceToStart {
			return ErrInsufficientBalance
		}

		vehicle, err := store.Vehicles().GetByID(ctx, req.VehicleID)
		if err != nil {
			return notFoundAs(err, ErrVehicleNotFound)
		}
		if !vehicle.Available {
			return ErrVehicleUnavailable
		}

		ride = &domain.Ride{
			ID:            id.NewRideID().String(),
			UserID:        req.UserID,
			VehicleID:     req.VehicleID,
			WalletID:      req.WalletID,
			StartTime:     s.now().UTC(),
			StartLocation: vehicle.Location,
		}

		if err := store.Rides().Create(ctx, ride); err != nil {
			switch {
			case errors.Is(err, repository.ErrUserHasActiveRide):
				return ErrActiveRideExists
			case errors.Is(err, repository.ErrVehicleInUse):
				return ErrVehicleUnavailable
			}
			return fmt.Errorf("create ride: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.InfoContext(ctx, "ride started",
		"ride_id", ride.ID, "user_id", ride.UserID, "vehicle_id", ride.VehicleID, "wallet_id", ride.WalletID)
	return ride, nil
}

// EndRideRequest contains the parameters for ending a ride.
type EndRideRequest struct {
	RideID      string
	CallerID    string
	EndLocation domain.Location
}

// EndRide bills and closes an active ride. The fare debit, the ride close and
// the vehicle relocation commit together or not at all; a second end of the
// same ride fails with ErrRideAlreadyEnded and debits nothing.
func (s *RideService) EndRide(ctx context.Context, req EndRideRequest) (*domain.Ride, error) {
	if req.RideID == "" {
		return nil, ErrInvalidID
	}
	if !req.EndLocation.Valid() {
		return nil, ErrInvalidLocation
	}

	var ride *domain.Ride
	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		// Lock order is ride then wallet.
		r, err := store.Rides().GetForUpdate(ctx, req.RideID)
		if err != nil {
			return notFoundAs(err, ErrRideNotFound)
		}
		if r.UserID != req.CallerID {
			return ErrNotOwner
		}
		if !r.Active() {
			return ErrRideAlreadyEnded
		}

		endTime := s.now().UTC()
		amount, err := CalculateFare(s.cfg, r.StartTime, endTime)
		if err != nil {
			return err
		}

		if _, err := s.ledger.ApplyDebit(ctx, store, DebitRequest{
			WalletID: r.WalletID,
			Amount:   amount,
			Reason:   domain.ReasonRideFare,
		}); err != nil {
			return err
		}

		if err := store.Rides().Close(ctx, r.ID, endTime, req.EndLocation, amount); err != nil {
			if errors.Is(err, repository.ErrRideClosed) {
				return ErrRideAlreadyEnded
			}
			return fmt.Errorf("close ride: %w", err)
		}

		endLocation := req.EndLocation
		if err := store.Vehicles().UpdateTelemetry(ctx, r.VehicleID, nil, &endLocation); err != nil {
			return fmt.Errorf("move vehicle: %w", notFoundAs(err, ErrVehicleNotFound))
		}

		r.EndTime = &endTime
		r.EndLocation = &endLocation
		r.Amount = &amount
		ride = r
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.ledger.recordDebit(ctx, domain.ReasonRideFare)

	if s.locations != nil {
		if err := s.locations.UpdateLocation(ctx, ride.VehicleID, req.EndLocation); err != nil {
			s.logger.WarnContext(ctx, "refresh vehicle location", "vehicle_id", ride.VehicleID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "ride ended",
		"ride_id", ride.ID, "user_id", ride.UserID, "amount", *ride.Amount,
		"duration", ride.EndTime.Sub(ride.StartTime).String())
	return ride, nil
}

// WaypointInput is one reported location sample.
type WaypointInput struct {
	Location  domain.Location
	Timestamp time.Time // zero means now
}

// AddWaypointsRequest contains the parameters for appending waypoints.
type AddWaypointsRequest struct {
	RideID    string
	VehicleID string // the reporting vehicle
	Waypoints []WaypointInput
}

// AddWaypoints appends location samples to an active ride.
func (s *RideService) AddWaypoints(ctx context.Context, req AddWaypointsRequest) ([]*domain.RideWaypoint, error) {
	if req.RideID == "" || req.VehicleID == "" {
		return nil, ErrInvalidID
	}
	if len(req.Waypoints) == 0 {
		return nil, ErrNoWaypoints
	}

	now := s.now().UTC()
	waypoints := make([]*domain.RideWaypoint, 0, len(req.Waypoints))
	for _, in := range req.Waypoints {
		if !in.Location.Valid() {
			return nil, ErrInvalidLocation
		}
		ts := in.Timestamp
		if ts.IsZero() {
			ts = now
		}
		waypoints = append(waypoints, &domain.RideWaypoint{
			ID:        id.NewRideWaypointID().String(),
			RideID:    req.RideID,
			Location:  in.Location,
			Timestamp: ts.UTC(),
		})
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		ride, err := store.Rides().GetForUpdate(ctx, req.RideID)
		if err != nil {
			return notFoundAs(err, ErrRideNotFound)
		}
		if ride.VehicleID != req.VehicleID {
			return ErrWrongVehicle
		}
		if !ride.Active() {
			return ErrRideAlreadyEnded
		}
		return store.Waypoints().InsertBatch(ctx, waypoints)
	})
	if err != nil {
		return nil, storageError(err)
	}

	return waypoints, nil
}

// GetRide retrieves a ride owned by callerID.
func (s *RideService) GetRide(ctx context.Context, rideID, callerID string) (*domain.Ride, error) {
	ride, err := s.db.Rides().GetByID(ctx, rideID)
	if err != nil {
		return nil, notFoundAs(err, ErrRideNotFound)
	}
	if ride.UserID != callerID {
		return nil, ErrNotOwner
	}
	return ride, nil
}

// Waypoints lists the samples of a ride owned by callerID.
func (s *RideService) Waypoints(ctx context.Context, rideID, callerID string) ([]*domain.RideWaypoint, error) {
	if _, err := s.GetRide(ctx, rideID, callerID); err != nil {
		return nil, err
	}
	return s.db.Waypoints().ListByRide(ctx, rideID)
}

// RidesForUser lists a user's rides, newest first.
func (s *RideService) RidesForUser(ctx context.Context, userID, callerID string) ([]*domain.Ride, error) {
	if userID != callerID {
		return nil, ErrNotOwner
	}
	return s.db.Rides().ListByUser(ctx, userID, defaultRidesLimit)
}

// ActiveRide returns the user's active ride, or nil if there is none.
func (s *RideService) ActiveRide(ctx context.Context, userID, callerID string) (*domain.Ride, error) {
	if userID != callerID {
		return nil, ErrNotOwner
	}
	ride, err := s.db.Rides().GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ride, nil
}
