package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	// that has no more specific sentinel.
	ErrDuplicate = errors.New("entity already exists")

	// ErrUserHasActiveRide is returned when inserting a ride for a user who
	// already has a ride with no end time.
	ErrUserHasActiveRide = errors.New("user already has an active ride")

	// ErrVehicleInUse is returned when inserting a ride for a vehicle that is
	// already on an active ride.
	ErrVehicleInUse = errors.New("vehicle already has an active ride")

	// ErrRideClosed is returned when closing a ride that already has an end time.
	ErrRideClosed = errors.New("ride already closed")

	// ErrBalanceMismatch is returned by a compare-and-swap balance update when
	// the stored balance differs from the expected one.
	ErrBalanceMismatch = errors.New("wallet balance does not match expected value")

	// ErrContention is returned when a transaction keeps failing with
	// serialization or deadlock errors after all retries.
	ErrContention = errors.New("transaction aborted after repeated contention")
)
