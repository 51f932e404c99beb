package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"scootr/internal/domain"
)

const vehicleLocationKey = "vehicles:locations"

// VehicleLocation represents a vehicle's indexed position.
type VehicleLocation struct {
	VehicleID string
	Location  domain.Location
	Distance  float64 // meters from the search center
}

// LocationStore handles vehicle location operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a vehicle's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, vehicleID string, loc domain.Location) error {
	return s.client.GeoAdd(ctx, vehicleLocationKey, &redis.GeoLocation{
		Name:      vehicleID,
		Longitude: loc.Longitude,
		Latitude:  loc.Latitude,
	}).Err()
}

// FindNearbyVehicles returns vehicles within radiusMeters of center, closest first.
func (s *LocationStore) FindNearbyVehicles(ctx context.Context, center domain.Location, radiusMeters float64) ([]VehicleLocation, error) {
	results, err := s.client.GeoSearchLocation(ctx, vehicleLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]VehicleLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, VehicleLocation{
			VehicleID: r.Name,
			Location:  domain.Location{Longitude: r.Longitude, Latitude: r.Latitude},
			Distance:  r.Dist,
		})
	}

	return locations, nil
}

// RemoveLocation removes a vehicle from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	return s.client.ZRem(ctx, vehicleLocationKey, vehicleID).Err()
}
