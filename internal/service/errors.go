package service

import (
	"errors"
	"fmt"

	"scootr/internal/repository"
)

// Error kinds. Every error returned by a service wraps exactly one of these,
// so callers classify failures with errors.Is.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict is returned when an operation would break an invariant.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when a policy forbids the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest is returned for malformed input.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal is returned for storage failures and detected inconsistencies.
	ErrInternal = errors.New("internal error")
)

var (
	ErrWalletNotFound        = fmt.Errorf("%w: wallet", ErrNotFound)
	ErrRideNotFound          = fmt.Errorf("%w: ride", ErrNotFound)
	ErrVehicleNotFound       = fmt.Errorf("%w: vehicle", ErrNotFound)
	ErrPaymentMethodNotFound = fmt.Errorf("%w: payment method", ErrNotFound)
)

var (
	// ErrActiveRideExists is returned when the user already has an active ride.
	ErrActiveRideExists = fmt.Errorf("%w: user already has an active ride", ErrConflict)

	// ErrVehicleUnavailable is returned when the vehicle is on another ride.
	ErrVehicleUnavailable = fmt.Errorf("%w: vehicle is not available", ErrConflict)

	// ErrRideAlreadyEnded is returned when ending or extending a completed ride.
	ErrRideAlreadyEnded = fmt.Errorf("%w: ride already ended", ErrConflict)

	// ErrRideStartInProgress is returned when another start for the same user holds the lock.
	ErrRideStartInProgress = fmt.Errorf("%w: another ride start is in progress", ErrConflict)

	// ErrBalanceChanged is returned by a conditional credit whose expected balance is stale.
	ErrBalanceChanged = fmt.Errorf("%w: wallet balance changed", ErrConflict)

	// ErrInsufficientBalance is returned when the wallet cannot cover the operation.
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient wallet balance", ErrForbidden)

	// ErrNotOwner is returned when the caller does not own the resource.
	ErrNotOwner = fmt.Errorf("%w: caller does not own this resource", ErrForbidden)

	// ErrWrongVehicle is returned when a vehicle reports for a ride it is not assigned to.
	ErrWrongVehicle = fmt.Errorf("%w: vehicle is not assigned to this ride", ErrForbidden)

	// ErrInvalidSignature is returned when a provider event fails verification.
	ErrInvalidSignature = fmt.Errorf("%w: invalid event signature", ErrForbidden)

	// ErrInvalidAmount is returned for non-positive ledger amounts.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrBadRequest)

	// ErrInvalidReason is returned for unknown transaction reasons.
	ErrInvalidReason = fmt.Errorf("%w: unknown transaction reason", ErrBadRequest)

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = fmt.Errorf("%w: invalid location", ErrBadRequest)

	// ErrInvalidBatteryLevel is returned when battery is outside 0..100.
	ErrInvalidBatteryLevel = fmt.Errorf("%w: battery level must be between 0 and 100", ErrBadRequest)

	// ErrInvalidID is returned when an identifier is empty.
	ErrInvalidID = fmt.Errorf("%w: invalid id", ErrBadRequest)

	// ErrNoWaypoints is returned when addWaypoints receives an empty list.
	ErrNoWaypoints = fmt.Errorf("%w: no waypoints given", ErrBadRequest)

	// ErrInvalidRadius is returned for non-positive search radii.
	ErrInvalidRadius = fmt.Errorf("%w: radius must be positive", ErrBadRequest)

	// ErrFareBelowFixedCost is returned when the computed fare is below the fixed cost.
	ErrFareBelowFixedCost = fmt.Errorf("%w: fare below fixed cost", ErrInternal)

	// ErrContention is returned when a transaction could not complete after retries.
	ErrContention = fmt.Errorf("%w: storage contention", ErrInternal)

	// ErrGeoIndexUnavailable is returned when no location index is configured.
	ErrGeoIndexUnavailable = fmt.Errorf("%w: vehicle location index unavailable", ErrInternal)

	// ErrProviderDiverged is returned when provider state references local
	// records that do not exist.
	ErrProviderDiverged = fmt.Errorf("%w: payment provider state diverged from local state", ErrInternal)
)

// notFoundAs replaces a repository not-found error with a more specific one.
func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

// storageError maps repository contention to ErrContention and leaves other
// errors untouched.
func storageError(err error) error {
	if errors.Is(err, repository.ErrContention) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}
