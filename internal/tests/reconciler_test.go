package tests

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scootr/internal/domain"
	"scootr/internal/repository"
	"scootr/internal/repository/memory"
	"scootr/internal/service"
)

// racingDB debits a wallet right before each of the next races transactions,
// simulating a ride fare landing between a balance read and a credit.
type racingDB struct {
	*memory.DB
	walletID string
	races    int
}

func (d *racingDB) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	if d.races > 0 {
		d.races--
		if err := d.DB.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.Wallets().ApplyDelta(ctx, d.walletID, -100)
			return err
		}); err != nil {
			return err
		}
	}
	return d.DB.WithinTx(ctx, fn)
}

func TestPaymentSucceeded_CreditsOnce(t *testing.T) {
	e := newEnv(t)
	walletID := e.seedWallet("usr_1", 0)

	evt := service.PaymentSucceeded{EventID: "evt_1", WalletID: walletID, Amount: 500, ExternalID: "pi_1"}
	require.NoError(t, e.reconciler.Handle(bg, evt))
	assert.Equal(t, int32(1), e.events.MarkCallCount)

	// Redelivery after the mark expired still credits nothing.
	e.events.Forget("evt_1")
	require.NoError(t, e.reconciler.Handle(bg, evt))

	// A different event for the same payment is deduplicated by payment id.
	require.NoError(t, e.reconciler.Handle(bg, service.PaymentSucceeded{
		EventID: "evt_2", WalletID: walletID, Amount: 500, ExternalID: "pi_1",
	}))

	assert.Equal(t, int64(500), e.db.Balance(walletID))
	txns := e.db.TransactionsFor(walletID)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.ReasonTopUp, txns[0].Reason)
	require.NotNil(t, txns[0].ExternalID)
	assert.Equal(t, "pi_1", *txns[0].ExternalID)
	ledgerBalanced(t, e.db, walletID, 0)
}

func TestHandle_ProcessedMarkerShortCircuits(t *testing.T) {
	e := newEnv(t)
	walletID := e.seedWallet("usr_1", 0)

	require.NoError(t, e.events.MarkProcessed(bg, "evt_1"))
	require.NoError(t, e.reconciler.Handle(bg, service.PaymentSucceeded{
		EventID: "evt_1", WalletID: walletID, Amount: 500, ExternalID: "pi_1",
	}))

	assert.Equal(t, int64(0), e.db.Balance(walletID))
	assert.Zero(t, e.db.TxCount)
}

func TestHandle_EventStoreFailuresAreIgnored(t *testing.T) {
	e := newEnv(t)
	walletID := e.seedWallet("usr_1", 0)
	e.events.IsProcessedError = errors.New("redis down")
	e.events.MarkError = errors.New("redis down")

	evt := service.PaymentSucceeded{EventID: "evt_1", WalletID: walletID, Amount: 500, ExternalID: "pi_1"}
	require.NoError(t, e.reconciler.Handle(bg, evt))
	require.NoError(t, e.reconciler.Handle(bg, evt))

	assert.Equal(t, int64(500), e.db.Balance(walletID))
	assert.Len(t, e.db.TransactionsFor(walletID), 1)
}

func TestPaymentSucceeded_RetriesAfterLostRace(t *testing.T) {
	base := memory.New()
	racing := &racingDB{DB: base, races: 1}
	e := newEnvWith(t, envOptions{db: racing, retries: 3})
	e.db = base
	racing.walletID = e.seedWallet("usr_1", 1000)

	require.NoError(t, e.reconciler.Handle(bg, service.PaymentSucceeded{
		EventID: "evt_1", WalletID: racing.walletID, Amount: 500, ExternalID: "pi_1",
	}))

	assert.Equal(t, int64(1000-100+500), base.Balance(racing.walletID))
	assert.Len(t, base.TransactionsFor(racing.walletID), 1)
}

func TestPaymentSucceeded_GivesUpAfterRetries(t *testing.T) {
	base := memory.New()
	racing := &racingDB{DB: base, races: 10}
	e := newEnvWith(t, envOptions{db: racing, retries: 3})
	e.db = base
	racing.walletID = e.seedWallet("usr_1", 1000)

	err := e.reconciler.Handle(bg, service.PaymentSucceeded{
		EventID: "evt_1", WalletID: racing.walletID, Amount: 500, ExternalID: "pi_1",
	})
	require.ErrorIs(t, err, service.ErrContention)
	assert.ErrorIs(t, err, service.ErrInternal)

	assert.Equal(t, int64(1000-4*100), base.Balance(racing.walletID))
	assert.Empty(t, base.TransactionsFor(racing.walletID))
	assert.Zero(t, e.events.MarkCallCount, "failed events must stay redeliverable")
}

func TestPaymentSucceeded_UnknownWallet(t *testing.T) {
	e := newEnv(t)

	err := e.reconciler.Handle(bg, service.PaymentSucceeded{
		EventID: "evt_1", WalletID: "wlt_missing", Amount: 500, ExternalID: "pi_1",
	})
	require.ErrorIs(t, err, service.ErrProviderDiverged)
	assert.ErrorIs(t, err, service.ErrInternal)
}

func TestCustomerEvents(t *testing.T) {
	e := newEnv(t)
	walletID := e.seedWallet("usr_1", 0)

	created := service.CustomerCreated{EventID: "evt_c1", CustomerID: "cus_1", WalletID: walletID}
	require.NoError(t, e.reconciler.Handle(bg, created))
	e.events.Forget("evt_c1")
	require.NoError(t, e.reconciler.Handle(bg, created))

	wallet, err := e.db.Wallets().GetByID(bg, walletID)
	require.NoError(t, err)
	require.NotNil(t, wallet.ExternalCustomerID)
	assert.Equal(t, "cus_1", *wallet.ExternalCustomerID)

	// Another wallet claiming the same customer means the provider and we disagree.
	otherWallet := e.seedWallet("usr_2", 0)
	err = e.reconciler.Handle(bg, service.CustomerCreated{EventID: "evt_c2", CustomerID: "cus_1", WalletID: otherWallet})
	assert.ErrorIs(t, err, service.ErrProviderDiverged)

	require.NoError(t, e.reconciler.Handle(bg, service.PaymentMethodAttached{
		EventID: "evt_a1", PaymentMethodID: "pm_1", CustomerID: "cus_1",
		Type: "card", Data: json.RawMessage(`{"brand":"visa","last4":"4242"}`),
	}))

	require.NoError(t, e.reconciler.Handle(bg, service.CustomerUpdated{
		EventID: "evt_u1", CustomerID: "cus_1", DefaultPaymentMethodID: "pm_1",
	}))
	wallet, err = e.db.Wallets().GetByID(bg, walletID)
	require.NoError(t, err)
	require.NotNil(t, wallet.DefaultPaymentMethod)

	pm, err := e.db.PaymentMethods().GetByExternalID(bg, "pm_1")
	require.NoError(t, err)
	assert.Equal(t, pm.ID, *wallet.DefaultPaymentMethod)

	err = e.reconciler.Handle(bg, service.CustomerUpdated{
		EventID: "evt_u2", CustomerID: "cus_1", DefaultPaymentMethodID: "pm_unknown",
	})
	assert.ErrorIs(t, err, service.ErrProviderDiverged)

	require.NoError(t, e.reconciler.Handle(bg, service.CustomerUpdated{EventID: "evt_u3", CustomerID: "cus_1"}))
	wallet, err = e.db.Wallets().GetByID(bg, walletID)
	require.NoError(t, err)
	assert.Nil(t, wallet.DefaultPaymentMethod)
}

func TestPaymentMethodEvents(t *testing.T) {
	e := newEnv(t)
	walletID := e.seedWallet("usr_1", 0)

	// The attach arrives before customer.created; the directory supplies the wallet.
	e.customers.AddCustomer("cus_1", walletID)
	attached := service.PaymentMethodAttached{
		EventID: "evt_a1", PaymentMethodID: "pm_1", CustomerID: "cus_1",
		Type: "card", Data: json.RawMessage(`{"brand":"visa"}`),
	}
	require.NoError(t, e.reconciler.Handle(bg, attached))
	e.events.Forget("evt_a1")
	require.NoError(t, e.reconciler.Handle(bg, attached))

	assert.Equal(t, 1, e.db.CountPaymentMethods())
	assert.Equal(t, int32(1), e.customers.LookupCallCount, "the second attach finds the linked wallet")

	wallet, err := e.db.Wallets().GetByID(bg, walletID)
	require.NoError(t, err)
	require.NotNil(t, wallet.ExternalCustomerID)
	assert.Equal(t, "cus_1", *wallet.ExternalCustomerID)

	require.NoError(t, e.reconciler.Handle(bg, service.PaymentMethodUpdated{
		EventID: "evt_p1", PaymentMethodID: "pm_1", Data: json.RawMessage(`{"brand":"visa","exp_year":2030}`),
	}))
	pm, err := e.db.PaymentMethods().GetByExternalID(bg, "pm_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"brand":"visa","exp_year":2030}`, string(pm.Data))

	err = e.reconciler.Handle(bg, service.PaymentMethodUpdated{EventID: "evt_p2", PaymentMethodID: "pm_missing"})
	assert.ErrorIs(t, err, service.ErrNotFound)

	require.NoError(t, e.reconciler.Handle(bg, service.CustomerUpdated{
		EventID: "evt_u1", CustomerID: "cus_1", DefaultPaymentMethodID: "pm_1",
	}))

	detached := service.PaymentMethodDetached{EventID: "evt_d1", PaymentMethodID: "pm_1"}
	require.NoError(t, e.reconciler.Handle(bg, detached))
	e.events.Forget("evt_d1")
	require.NoError(t, e.reconciler.Handle(bg, detached))

	assert.Zero(t, e.db.CountPaymentMethods())
	wallet, err = e.db.Wallets().GetByID(bg, walletID)
	require.NoError(t, err)
	assert.Nil(t, wallet.DefaultPaymentMethod)
}

func TestPaymentMethodAttached_UnknownCustomer(t *testing.T) {
	e := newEnv(t)

	err := e.reconciler.Handle(bg, service.PaymentMethodAttached{
		EventID: "evt_a1", PaymentMethodID: "pm_1", CustomerID: "cus_nobody", Type: "card",
	})
	require.ErrorIs(t, err, service.ErrProviderDiverged)
	assert.Zero(t, e.db.CountPaymentMethods())

	e.customers.LookupError = errors.New("provider unreachable")
	err = e.reconciler.Handle(bg, service.PaymentMethodAttached{
		EventID: "evt_a2", PaymentMethodID: "pm_2", CustomerID: "cus_other", Type: "card",
	})
	require.Error(t, err)
	assert.Zero(t, e.events.MarkCallCount)
}

func TestHandle_NilEvent(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reconciler.Handle(bg, nil))
	assert.Zero(t, e.events.MarkCallCount)
}
