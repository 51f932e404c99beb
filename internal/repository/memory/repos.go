package memory

import (
	"context"
	"sort"
	"time"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

type walletRepo struct{ s *store }

func (r walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	defer r.s.lock()()
	t := r.s.db.data
	if _, ok := t.wallets[w.ID]; ok {
		return repository.ErrDuplicate
	}
	if w.ExternalCustomerID != nil {
		if _, ok := findWalletByCustomer(t, *w.ExternalCustomerID); ok {
			return repository.ErrDuplicate
		}
	}
	t.wallets[w.ID] = *w
	return nil
}

func (r walletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	defer r.s.lock()()
	w, ok := r.s.db.data.wallets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

// GetForUpdate is GetByID: the transaction already holds every row.
func (r walletRepo) GetForUpdate(ctx context.Context, id string) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r walletRepo) GetByExternalCustomer(ctx context.Context, customerID string) (*domain.Wallet, error) {
	defer r.s.lock()()
	w, ok := findWalletByCustomer(r.s.db.data, customerID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func findWalletByCustomer(t *tables, customerID string) (domain.Wallet, bool) {
	for _, w := range t.wallets {
		if w.ExternalCustomerID != nil && *w.ExternalCustomerID == customerID {
			return w, true
		}
	}
	return domain.Wallet{}, false
}

func (r walletRepo) ApplyDelta(ctx context.Context, id string, delta int64) (int64, error) {
	defer r.s.lock()()
	t := r.s.db.data
	w, ok := t.wallets[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	w.Balance += delta
	t.wallets[id] = w
	return w.Balance, nil
}

func (r walletRepo) ApplyDeltaIfBalance(ctx context.Context, id string, delta, expected int64) (int64, error) {
	defer r.s.lock()()
	t := r.s.db.data
	w, ok := t.wallets[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if w.Balance != expected {
		return 0, repository.ErrBalanceMismatch
	}
	w.Balance += delta
	t.wallets[id] = w
	return w.Balance, nil
}

func (r walletRepo) SetExternalCustomer(ctx context.Context, id, customerID string) error {
	defer r.s.lock()()
	t := r.s.db.data
	w, ok := t.wallets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if other, found := findWalletByCustomer(t, customerID); found && other.ID != id {
		return repository.ErrDuplicate
	}
	w.ExternalCustomerID = &customerID
	t.wallets[id] = w
	return nil
}

func (r walletRepo) SetDefaultPaymentMethod(ctx context.Context, id string, paymentMethodID *string) error {
	defer r.s.lock()()
	t := r.s.db.data
	w, ok := t.wallets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if paymentMethodID != nil {
		pm := *paymentMethodID
		w.DefaultPaymentMethod = &pm
	} else {
		w.DefaultPaymentMethod = nil
	}
	t.wallets[id] = w
	return nil
}

type transactionRepo struct{ s *store }

func (r transactionRepo) Insert(ctx context.Context, txn *domain.Transaction) (bool, error) {
	defer r.s.lock()()
	t := r.s.db.data
	if txn.ExternalID != nil {
		for _, existing := range t.transactions {
			if existing.ExternalID != nil && *existing.ExternalID == *txn.ExternalID {
				return false, nil
			}
		}
	}
	if _, ok := t.transactions[txn.ID]; ok {
		return false, repository.ErrDuplicate
	}
	t.transactions[txn.ID] = *txn
	t.txnOrder = append(t.txnOrder, txn.ID)
	return true, nil
}

func (r transactionRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	defer r.s.lock()()
	for _, txn := range r.s.db.data.transactions {
		if txn.ExternalID != nil && *txn.ExternalID == externalID {
			return &txn, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r transactionRepo) ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.Transaction, error) {
	defer r.s.lock()()
	t := r.s.db.data
	var out []*domain.Transaction
	for i := len(t.txnOrder) - 1; i >= 0 && len(out) < limit; i-- {
		txn := t.transactions[t.txnOrder[i]]
		if txn.WalletID == walletID {
			out = append(out, &txn)
		}
	}
	return out, nil
}

type rideRepo struct{ s *store }

func (r rideRepo) Create(ctx context.Context, ride *domain.Ride) error {
	defer r.s.lock()()
	t := r.s.db.data
	if _, ok := t.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range t.rides {
		if existing.EndTime == nil && existing.UserID == ride.UserID {
			return repository.ErrUserHasActiveRide
		}
	}
	if !vehicleAvailable(t, ride.VehicleID) {
		return repository.ErrVehicleInUse
	}
	t.rides[ride.ID] = *ride
	return nil
}

func (r rideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	defer r.s.lock()()
	ride, ok := r.s.db.data.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ride, nil
}

func (r rideRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r rideRepo) Close(ctx context.Context, id string, endTime time.Time, endLocation domain.Location, amount int64) error {
	defer r.s.lock()()
	t := r.s.db.data
	ride, ok := t.rides[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ride.EndTime != nil {
		return repository.ErrRideClosed
	}
	ride.EndTime = &endTime
	ride.EndLocation = &endLocation
	ride.Amount = &amount
	t.rides[id] = ride
	return nil
}

func (r rideRepo) GetActiveByUser(ctx context.Context, userID string) (*domain.Ride, error) {
	defer r.s.lock()()
	for _, ride := range r.s.db.data.rides {
		if ride.UserID == userID && ride.EndTime == nil {
			return &ride, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r rideRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	defer r.s.lock()()
	var out []*domain.Ride
	for _, ride := range r.s.db.data.rides {
		if ride.UserID == userID {
			ride := ride
			out = append(out, &ride)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type waypointRepo struct{ s *store }

func (r waypointRepo) InsertBatch(ctx context.Context, waypoints []*domain.RideWaypoint) error {
	defer r.s.lock()()
	t := r.s.db.data
	for _, wp := range waypoints {
		if _, ok := t.rides[wp.RideID]; !ok {
			return repository.ErrNotFound
		}
		t.waypoints[wp.RideID] = append(t.waypoints[wp.RideID], *wp)
	}
	return nil
}

func (r waypointRepo) ListByRide(ctx context.Context, rideID string) ([]*domain.RideWaypoint, error) {
	defer r.s.lock()()
	stored := r.s.db.data.waypoints[rideID]
	out := make([]*domain.RideWaypoint, 0, len(stored))
	for i := range stored {
		wp := stored[i]
		out = append(out, &wp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type vehicleRepo struct{ s *store }

func (r vehicleRepo) Create(ctx context.Context, v *domain.Vehicle) error {
	defer r.s.lock()()
	t := r.s.db.data
	if _, ok := t.vehicles[v.ID]; ok {
		return repository.ErrDuplicate
	}
	t.vehicles[v.ID] = *v
	return nil
}

func (r vehicleRepo) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	defer r.s.lock()()
	v, ok := r.s.db.data.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v.Available = vehicleAvailable(r.s.db.data, id)
	return &v, nil
}

func (r vehicleRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Vehicle, error) {
	defer r.s.lock()()
	t := r.s.db.data
	var out []*domain.Vehicle
	for _, id := range ids {
		v, ok := t.vehicles[id]
		if !ok {
			continue
		}
		v.Available = vehicleAvailable(t, id)
		out = append(out, &v)
	}
	return out, nil
}

// vehicleAvailable mirrors the v_vehicles view.
func vehicleAvailable(t *tables, vehicleID string) bool {
	for _, ride := range t.rides {
		if ride.VehicleID == vehicleID && ride.EndTime == nil {
			return false
		}
	}
	return true
}

func (r vehicleRepo) UpdateTelemetry(ctx context.Context, id string, batteryLevel *int, location *domain.Location) error {
	defer r.s.lock()()
	t := r.s.db.data
	v, ok := t.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	if batteryLevel != nil {
		v.BatteryLevel = *batteryLevel
	}
	if location != nil {
		v.Location = *location
	}
	t.vehicles[id] = v
	return nil
}

type paymentMethodRepo struct{ s *store }

func (r paymentMethodRepo) Upsert(ctx context.Context, pm *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	defer r.s.lock()()
	t := r.s.db.data
	if _, ok := t.wallets[pm.WalletID]; !ok {
		return nil, repository.ErrNotFound
	}
	for id, existing := range t.paymentMethods {
		if existing.ExternalID == pm.ExternalID {
			existing.WalletID = pm.WalletID
			existing.Type = pm.Type
			existing.Data = append([]byte(nil), pm.Data...)
			t.paymentMethods[id] = existing
			return &existing, nil
		}
	}
	stored := *pm
	stored.Data = append([]byte(nil), pm.Data...)
	t.paymentMethods[pm.ID] = stored
	return &stored, nil
}

func (r paymentMethodRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error) {
	defer r.s.lock()()
	for _, pm := range r.s.db.data.paymentMethods {
		if pm.ExternalID == externalID {
			return &pm, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r paymentMethodRepo) UpdateData(ctx context.Context, externalID string, data []byte) error {
	defer r.s.lock()()
	t := r.s.db.data
	for id, pm := range t.paymentMethods {
		if pm.ExternalID == externalID {
			pm.Data = append([]byte(nil), data...)
			t.paymentMethods[id] = pm
			return nil
		}
	}
	return repository.ErrNotFound
}

// DeleteByExternalID also clears wallet defaults, like ON DELETE SET NULL.
func (r paymentMethodRepo) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	defer r.s.lock()()
	t := r.s.db.data
	for id, pm := range t.paymentMethods {
		if pm.ExternalID != externalID {
			continue
		}
		delete(t.paymentMethods, id)
		for wid, w := range t.wallets {
			if w.DefaultPaymentMethod != nil && *w.DefaultPaymentMethod == id {
				w.DefaultPaymentMethod = nil
				t.wallets[wid] = w
			}
		}
		return true, nil
	}
	return false, nil
}

func (r paymentMethodRepo) ListByWallet(ctx context.Context, walletID string) ([]*domain.PaymentMethod, error) {
	defer r.s.lock()()
	var out []*domain.PaymentMethod
	for _, pm := range r.s.db.data.paymentMethods {
		if pm.WalletID == walletID {
			pm := pm
			out = append(out, &pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
