// Package memory is an in-process implementation of repository.Database.
//
// It enforces the same uniqueness rules as the SQL schema (one active ride per
// user and per vehicle, unique transaction and payment-method external IDs,
// unique external customer per wallet) so services can be tested without a
// database. Transactions are fully serialized and roll back by restoring a
// snapshot.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

var _ repository.Database = (*DB)(nil)

type tables struct {
	wallets        map[string]domain.Wallet
	transactions   map[string]domain.Transaction
	txnOrder       []string
	rides          map[string]domain.Ride
	waypoints      map[string][]domain.RideWaypoint
	vehicles       map[string]domain.Vehicle
	paymentMethods map[string]domain.PaymentMethod
}

func newTables() *tables {
	return &tables{
		wallets:        make(map[string]domain.Wallet),
		transactions:   make(map[string]domain.Transaction),
		rides:          make(map[string]domain.Ride),
		waypoints:      make(map[string][]domain.RideWaypoint),
		vehicles:       make(map[string]domain.Vehicle),
		paymentMethods: make(map[string]domain.PaymentMethod),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.wallets {
		c.wallets[k] = v
	}
	for k, v := range t.transactions {
		c.transactions[k] = v
	}
	c.txnOrder = append([]string(nil), t.txnOrder...)
	for k, v := range t.rides {
		c.rides[k] = v
	}
	for k, v := range t.waypoints {
		c.waypoints[k] = append([]domain.RideWaypoint(nil), v...)
	}
	for k, v := range t.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range t.paymentMethods {
		c.paymentMethods[k] = v
	}
	return c
}

// DB holds all tables behind one mutex.
type DB struct {
	mu   sync.Mutex
	data *tables

	// Counters for verification
	TxCount       int32
	RollbackCount int32

	// Error injection: returned by the next WithinTx before fn runs.
	TxError error
}

// New creates an empty database.
func New() *DB {
	return &DB{data: newTables()}
}

// WithinTx runs fn with exclusive access to the tables. If fn fails, every
// write it made is discarded.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	atomic.AddInt32(&d.TxCount, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.TxError != nil {
		err := d.TxError
		d.TxError = nil
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := d.data.clone()
	if err := fn(ctx, &store{db: d, inTx: true}); err != nil {
		d.data = snapshot
		atomic.AddInt32(&d.RollbackCount, 1)
		return err
	}
	return nil
}

// store is a repository.Store view. Outside a transaction every call takes
// the lock itself.
type store struct {
	db   *DB
	inTx bool
}

func (s *store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *store) Wallets() repository.WalletRepository               { return walletRepo{s} }
func (s *store) Transactions() repository.TransactionRepository     { return transactionRepo{s} }
func (s *store) Rides() repository.RideRepository                   { return rideRepo{s} }
func (s *store) Waypoints() repository.WaypointRepository           { return waypointRepo{s} }
func (s *store) Vehicles() repository.VehicleRepository             { return vehicleRepo{s} }
func (s *store) PaymentMethods() repository.PaymentMethodRepository { return paymentMethodRepo{s} }

func (d *DB) nonTx() *store { return &store{db: d} }

func (d *DB) Wallets() repository.WalletRepository               { return d.nonTx().Wallets() }
func (d *DB) Transactions() repository.TransactionRepository     { return d.nonTx().Transactions() }
func (d *DB) Rides() repository.RideRepository                   { return d.nonTx().Rides() }
func (d *DB) Waypoints() repository.WaypointRepository           { return d.nonTx().Waypoints() }
func (d *DB) Vehicles() repository.VehicleRepository             { return d.nonTx().Vehicles() }
func (d *DB) PaymentMethods() repository.PaymentMethodRepository { return d.nonTx().PaymentMethods() }

// AddWallet seeds a wallet, bypassing the ledger.
func (d *DB) AddWallet(w domain.Wallet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.wallets[w.ID] = w
}

// AddVehicle seeds a vehicle.
func (d *DB) AddVehicle(v domain.Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.vehicles[v.ID] = v
}

// AddRide seeds a ride, bypassing the active-ride checks.
func (d *DB) AddRide(r domain.Ride) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.rides[r.ID] = r
}

// Balance returns a wallet's balance, or 0 if it does not exist.
func (d *DB) Balance(walletID string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data.wallets[walletID].Balance
}

// TransactionsFor returns every transaction recorded for a wallet, oldest first.
func (d *DB) TransactionsFor(walletID string) []domain.Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Transaction
	for _, id := range d.data.txnOrder {
		if t := d.data.transactions[id]; t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out
}

// CountActiveRides returns the number of rides without an end time for a user.
func (d *DB) CountActiveRides(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.data.rides {
		if r.UserID == userID && r.EndTime == nil {
			n++
		}
	}
	return n
}

// CountPaymentMethods returns the number of stored payment methods.
func (d *DB) CountPaymentMethods() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data.paymentMethods)
}
