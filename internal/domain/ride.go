package domain

import "time"

// RideStatus is derived from a ride's end time.
type RideStatus string

const (
	RideStatusActive    RideStatus = "ACTIVE"
	RideStatusCompleted RideStatus = "COMPLETED"
)

// Ride is a single rental session from vehicle pickup to drop-off.
// A nil EndTime means the ride is still active; EndLocation and Amount are
// set together with EndTime and never change afterwards.
type Ride struct {
	ID            string
	UserID        string
	VehicleID     string
	WalletID      string
	StartTime     time.Time
	EndTime       *time.Time
	StartLocation Location
	EndLocation   *Location
	Amount        *int64 // minor units, nil until the ride ends
}

// Status returns ACTIVE while the ride has no end time.
func (r *Ride) Status() RideStatus {
	if r.EndTime == nil {
		return RideStatusActive
	}
	return RideStatusCompleted
}

// Active reports whether the ride has not ended yet.
func (r *Ride) Active() bool {
	return r.EndTime == nil
}

// RideWaypoint is a location sample reported by the vehicle during a ride.
type RideWaypoint struct {
	ID        string
	RideID    string
	Location  Location
	Timestamp time.Time
}
