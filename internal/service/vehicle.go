package service

import (
	"context"
	"log/slog"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/redis"
	"scootr/internal/repository"
)

// maxNearbyRadius bounds Nearby searches, in meters.
const maxNearbyRadius = 10_000

// VehicleService tracks vehicles, their telemetry and their location index.
type VehicleService struct {
	db        repository.Database
	locations redis.LocationStoreInterface
	logger    *slog.Logger
}

// NewVehicleService creates a new VehicleService. locations is optional;
// without it Nearby is unavailable.
func NewVehicleService(db repository.Database, locations redis.LocationStoreInterface, logger *slog.Logger) *VehicleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VehicleService{db: db, locations: locations, logger: logger}
}

// RegisterVehicleRequest contains the parameters for registering a vehicle.
type RegisterVehicleRequest struct {
	BatteryLevel int
	Location     domain.Location
}

// Register adds a vehicle to the fleet.
func (s *VehicleService) Register(ctx context.Context, req RegisterVehicleRequest) (*domain.Vehicle, error) {
	if !domain.ValidBatteryLevel(req.BatteryLevel) {
		return nil, ErrInvalidBatteryLevel
	}
	if !req.Location.Valid() {
		return nil, ErrInvalidLocation
	}

	vehicle := &domain.Vehicle{
		ID:           id.NewVehicleID().String(),
		BatteryLevel: req.BatteryLevel,
		Location:     req.Location,
		Available:    true,
	}

	if err := s.db.Vehicles().Create(ctx, vehicle); err != nil {
		return nil, err
	}

	s.indexLocation(ctx, vehicle.ID, vehicle.Location)
	return vehicle, nil
}

// Get retrieves a vehicle.
func (s *VehicleService) Get(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	vehicle, err := s.db.Vehicles().GetByID(ctx, vehicleID)
	if err != nil {
		return nil, notFoundAs(err, ErrVehicleNotFound)
	}
	return vehicle, nil
}

// UpdateTelemetryRequest contains a vehicle's self-reported state.
// Nil fields are left unchanged.
type UpdateTelemetryRequest struct {
	VehicleID       string
	CallerVehicleID string
	BatteryLevel    *int
	Location        *domain.Location
}

// UpdateTelemetry stores a vehicle's battery level and/or location.
func (s *VehicleService) UpdateTelemetry(ctx context.Context, req UpdateTelemetryRequest) (*domain.Vehicle, error) {
	if req.VehicleID != req.CallerVehicleID {
		return nil, ErrNotOwner
	}
	if req.BatteryLevel != nil && !domain.ValidBatteryLevel(*req.BatteryLevel) {
		return nil, ErrInvalidBatteryLevel
	}
	if req.Location != nil && !req.Location.Valid() {
		return nil, ErrInvalidLocation
	}

	if req.BatteryLevel != nil || req.Location != nil {
		if err := s.db.Vehicles().UpdateTelemetry(ctx, req.VehicleID, req.BatteryLevel, req.Location); err != nil {
			return nil, notFoundAs(err, ErrVehicleNotFound)
		}
	}
	if req.Location != nil {
		s.indexLocation(ctx, req.VehicleID, *req.Location)
	}

	return s.Get(ctx, req.VehicleID)
}

// NearbyVehicle is an available vehicle with its distance from the search center.
type NearbyVehicle struct {
	Vehicle  *domain.Vehicle
	Distance float64 // meters
}

// Nearby lists available vehicles within radiusMeters of center, closest first.
func (s *VehicleService) Nearby(ctx context.Context, center domain.Location, radiusMeters float64) ([]NearbyVehicle, error) {
	if !center.Valid() {
		return nil, ErrInvalidLocation
	}
	if radiusMeters <= 0 || radiusMeters > maxNearbyRadius {
		return nil, ErrInvalidRadius
	}
	if s.locations == nil {
		return nil, ErrGeoIndexUnavailable
	}

	hits, err := s.locations.FindNearbyVehicles(ctx, center, radiusMeters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []NearbyVehicle{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.VehicleID)
	}

	vehicles, err := s.db.Vehicles().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}

	// Keep the index order. Vehicles on a ride or no longer stored are skipped.
	result := make([]NearbyVehicle, 0, len(hits))
	for _, h := range hits {
		v, ok := byID[h.VehicleID]
		if !ok || !v.Available {
			continue
		}
		result = append(result, NearbyVehicle{Vehicle: v, Distance: h.Distance})
	}
	return result, nil
}

// indexLocation mirrors a vehicle's location into the geo index. The database
// row is authoritative, so failures are only logged.
func (s *VehicleService) indexLocation(ctx context.Context, vehicleID string, loc domain.Location) {
	if s.locations == nil {
		return
	}
	if err := s.locations.UpdateLocation(ctx, vehicleID, loc); err != nil {
		s.logger.WarnContext(ctx, "index vehicle location", "vehicle_id", vehicleID, "error", err)
	}
}
