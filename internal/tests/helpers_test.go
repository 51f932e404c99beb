package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/redis"
	"scootr/internal/repository"
	"scootr/internal/repository/memory"
	"scootr/internal/service"
)

// testClock is a settable clock shared by all services of an env.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// env wires every service against the in-memory database and mocks.
type env struct {
	db         *memory.DB
	clock      *testClock
	ledger     *service.LedgerService
	rides      *service.RideService
	vehicles   *service.VehicleService
	reconciler *service.ReconcilerService
	locations  *MockLocationStore
	locks      *MockLockStore
	events     *MockEventStore
	customers  *MockCustomerDirectory
}

type envOptions struct {
	db       repository.Database
	noLocks  bool
	retries  int
	rideConf *service.RideConfig
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, envOptions{retries: 3})
}

func newEnvWith(t *testing.T, opts envOptions) *env {
	t.Helper()

	e := &env{
		db:        memory.New(),
		clock:     newTestClock(),
		locations: NewMockLocationStore(),
		locks:     NewMockLockStore(),
		events:    NewMockEventStore(),
		customers: NewMockCustomerDirectory(),
	}

	var db repository.Database = e.db
	if opts.db != nil {
		db = opts.db
	}

	ledger, err := service.NewLedgerService(db, noop.NewMeterProvider().Meter("test"), nil, e.clock.Now)
	require.NoError(t, err)
	e.ledger = ledger

	cfg := service.DefaultRideConfig()
	if opts.rideConf != nil {
		cfg = *opts.rideConf
	}

	var locks redis.LockStoreInterface
	if !opts.noLocks {
		locks = e.locks
	}
	e.rides = service.NewRideService(db, ledger, e.locations, locks, cfg, nil, e.clock.Now)

	e.vehicles = service.NewVehicleService(db, e.locations, nil)
	e.reconciler = service.NewReconcilerService(db, ledger, e.events, e.customers,
		service.ReconcilerConfig{ConditionalCreditRetries: opts.retries}, nil)

	return e
}

func (e *env) seedWallet(userID string, balance int64) string {
	walletID := id.NewWalletID().String()
	e.db.AddWallet(domain.Wallet{ID: walletID, UserID: userID, Balance: balance, CreatedAt: e.clock.Now()})
	return walletID
}

func (e *env) seedVehicle(loc domain.Location) string {
	vehicleID := id.NewVehicleID().String()
	e.db.AddVehicle(domain.Vehicle{ID: vehicleID, BatteryLevel: 80, Location: loc})
	return vehicleID
}

// ledgerBalanced asserts that a wallet's balance equals its initial balance
// plus the sum of its transactions.
func ledgerBalanced(t *testing.T, db *memory.DB, walletID string, initial int64) {
	t.Helper()
	sum := initial
	for _, txn := range db.TransactionsFor(walletID) {
		sum += txn.Amount
	}
	require.Equal(t, sum, db.Balance(walletID), "balance does not match ledger entries")
}

var milan = domain.Location{Longitude: 9.19, Latitude: 45.46}

var bg = context.Background()
