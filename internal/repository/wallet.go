package repository

import (
	"context"

	"scootr/internal/domain"
)

// WalletRepository defines the persistence operations for wallets.
// Balance changes go through ApplyDelta and ApplyDeltaIfBalance only; callers
// hold the row lock from GetForUpdate when using them.
type WalletRepository interface {
	// Create persists a new wallet.
	Create(ctx context.Context, wallet *domain.Wallet) error

	// GetByID retrieves a wallet by ID.
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// GetForUpdate retrieves a wallet and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Wallet, error)

	// GetByExternalCustomer retrieves the wallet linked to a provider customer.
	GetByExternalCustomer(ctx context.Context, customerID string) (*domain.Wallet, error)

	// ApplyDelta adds delta to the balance and returns the new balance.
	ApplyDelta(ctx context.Context, id string, delta int64) (int64, error)

	// ApplyDeltaIfBalance adds delta only if the current balance equals expected.
	// Returns ErrBalanceMismatch otherwise.
	ApplyDeltaIfBalance(ctx context.Context, id string, delta, expected int64) (int64, error)

	// SetExternalCustomer links a provider customer to the wallet.
	SetExternalCustomer(ctx context.Context, id, customerID string) error

	// SetDefaultPaymentMethod sets or clears (nil) the default payment method.
	SetDefaultPaymentMethod(ctx context.Context, id string, paymentMethodID *string) error
}

// TransactionRepository defines the persistence operations for ledger entries.
type TransactionRepository interface {
	// Insert appends a transaction. When the transaction carries an external
	// ID that is already recorded, nothing is written and inserted is false.
	Insert(ctx context.Context, txn *domain.Transaction) (inserted bool, err error)

	// GetByExternalID retrieves the transaction recorded for an external ID.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)

	// ListByWallet retrieves a wallet's transactions, newest first.
	ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.Transaction, error)
}

// PaymentMethodRepository defines the persistence operations for payment methods.
type PaymentMethodRepository interface {
	// Upsert inserts a payment method or, if its external ID is known,
	// overwrites wallet, type and data. Returns the stored row.
	Upsert(ctx context.Context, pm *domain.PaymentMethod) (*domain.PaymentMethod, error)

	// GetByExternalID retrieves a payment method by provider ID.
	GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error)

	// UpdateData replaces the provider data of a payment method.
	UpdateData(ctx context.Context, externalID string, data []byte) error

	// DeleteByExternalID removes a payment method. Wallet defaults pointing at
	// it are cleared. Returns false if nothing matched.
	DeleteByExternalID(ctx context.Context, externalID string) (bool, error)

	// ListByWallet retrieves the payment methods attached to a wallet.
	ListByWallet(ctx context.Context, walletID string) ([]*domain.PaymentMethod, error)
}
