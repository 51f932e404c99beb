package tests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scootr/internal/domain"
	"scootr/internal/redis"
)

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStore.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations []redis.VehicleLocation

	// Counters
	UpdateLocationCallCount int32

	// Error injection
	UpdateLocationError     error
	FindNearbyVehiclesError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make([]redis.VehicleLocation, 0),
	}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, vehicleID string, loc domain.Location) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Update existing or add new.
	for i, existing := range m.locations {
		if existing.VehicleID == vehicleID {
			m.locations[i].Location = loc
			return nil
		}
	}
	m.locations = append(m.locations, redis.VehicleLocation{VehicleID: vehicleID, Location: loc})
	return nil
}

func (m *MockLocationStore) FindNearbyVehicles(ctx context.Context, center domain.Location, radiusMeters float64) ([]redis.VehicleLocation, error) {
	if m.FindNearbyVehiclesError != nil {
		return nil, m.FindNearbyVehiclesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return all locations in insertion order (mock doesn't do real geo filtering).
	result := make([]redis.VehicleLocation, len(m.locations))
	for i, loc := range m.locations {
		loc.Distance = float64(i * 10)
		result[i] = loc
	}
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.VehicleID == vehicleID {
			m.locations = append(m.locations[:i], m.locations[i+1:]...)
			return nil
		}
	}
	return nil
}

// LocationOf returns the indexed location of a vehicle.
func (m *MockLocationStore) LocationOf(vehicleID string) (domain.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, loc := range m.locations {
		if loc.VehicleID == vehicleID {
			return loc.Location, true
		}
	}
	return domain.Location{}, false
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]mockLock
	seq   int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// ReleasedTokens lists the tokens passed to ReleaseRideStartLock.
	ReleasedTokens []string

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireRideStartLock(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:ride-start:" + userID
	if held, exists := m.locks[key]; exists {
		if time.Now().Before(held.expiry) {
			return "", false, nil // Lock still held.
		}
	}

	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

func (m *MockLockStore) ReleaseRideStartLock(ctx context.Context, userID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleasedTokens = append(m.ReleasedTokens, token)
	key := "lock:ride-start:" + userID
	if m.locks[key].token == token {
		delete(m.locks, key)
	}
	return nil
}

// Expire makes a user's start lock lapse as if its TTL ran out.
func (m *MockLockStore) Expire(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:ride-start:" + userID
	if held, ok := m.locks[key]; ok {
		held.expiry = time.Now().Add(-time.Second)
		m.locks[key] = held
	}
}

// IsLocked checks if a user's start lock is held (for test assertions).
func (m *MockLockStore) IsLocked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, exists := m.locks["lock:ride-start:"+userID]
	return exists && time.Now().Before(held.expiry)
}

// ──────────────────────────────────────────────
// MOCK EVENT STORE
// ──────────────────────────────────────────────

// MockEventStore is a mock implementation of EventStore.
type MockEventStore struct {
	mu        sync.Mutex
	processed map[string]bool

	// Counters
	MarkCallCount int32

	// Error injection
	IsProcessedError error
	MarkError        error
}

// NewMockEventStore creates a new mock event store.
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		processed: make(map[string]bool),
	}
}

func (m *MockEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if m.IsProcessedError != nil {
		return false, m.IsProcessedError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[eventID], nil
}

func (m *MockEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	atomic.AddInt32(&m.MarkCallCount, 1)
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = true
	return nil
}

// Forget drops a mark, as if it had expired.
func (m *MockEventStore) Forget(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, eventID)
}

// ──────────────────────────────────────────────
// MOCK CUSTOMER DIRECTORY
// ──────────────────────────────────────────────

// MockCustomerDirectory is a mock payment provider customer API.
type MockCustomerDirectory struct {
	mu        sync.Mutex
	customers map[string]string // customer id -> wallet id

	// Counters
	LookupCallCount int32

	// Error injection
	LookupError error
}

// NewMockCustomerDirectory creates a new mock customer directory.
func NewMockCustomerDirectory() *MockCustomerDirectory {
	return &MockCustomerDirectory{
		customers: make(map[string]string),
	}
}

// AddCustomer registers a provider customer carrying a wallet id.
func (m *MockCustomerDirectory) AddCustomer(customerID, walletID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customerID] = walletID
}

func (m *MockCustomerDirectory) WalletIDForCustomer(ctx context.Context, customerID string) (string, error) {
	atomic.AddInt32(&m.LookupCallCount, 1)
	if m.LookupError != nil {
		return "", m.LookupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customers[customerID], nil
}

// ──────────────────────────────────────────────
// MOCK RESPONSE STORE
// ──────────────────────────────────────────────

// MockResponseStore is a mock implementation of ResponseStore.
type MockResponseStore struct {
	mu        sync.Mutex
	responses map[string][]byte
	pending   map[string]bool

	// Counters
	SaveCallCount    int32
	ReleaseCallCount int32

	// Error injection
	LookupError error
	SaveError   error
}

// NewMockResponseStore creates a new mock response store.
func NewMockResponseStore() *MockResponseStore {
	return &MockResponseStore{
		responses: make(map[string][]byte),
		pending:   make(map[string]bool),
	}
}

// Hold marks key as reserved by an in-flight request.
func (m *MockResponseStore) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[key] = true
}

// Stored returns the saved response for key.
func (m *MockResponseStore) Stored(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.responses[key]
	return data, ok
}

func (m *MockResponseStore) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	if m.LookupError != nil {
		return nil, false, m.LookupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[key] {
		return nil, true, nil
	}
	return m.responses[key], false, nil
}

func (m *MockResponseStore) Reserve(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[key] || m.responses[key] != nil {
		return false, nil
	}
	m.pending[key] = true
	return true, nil
}

func (m *MockResponseStore) Save(ctx context.Context, key string, data []byte) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.responses[key] = data
	return nil
}

func (m *MockResponseStore) Release(ctx context.Context, key string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	return nil
}
