package repository

import "context"

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Rides() RideRepository
	Waypoints() WaypointRepository
	Vehicles() VehicleRepository
	PaymentMethods() PaymentMethodRepository
}

// Transactor runs a function inside a database transaction.
// The Store passed to fn is bound to the transaction. The transaction commits
// if fn returns nil and rolls back otherwise. fn may be invoked more than once
// when the transaction is retried, so it must not have side effects outside
// the Store.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Database is a Store for single statements plus a Transactor.
type Database interface {
	Store
	Transactor
}
