package postgres

import (
	"context"
	"database/sql"
	"errors"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
type WalletRepository struct {
	q Querier
}

const walletColumns = `id, user_id, name, balance, external_customer_id, default_payment_method, created_at`

// Create persists a new wallet.
func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, name, balance, external_customer_id, default_payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		w.ID,
		w.UserID,
		w.Name,
		w.Balance,
		nullString(w.ExternalCustomerID),
		nullString(w.DefaultPaymentMethod),
		w.CreatedAt,
	)
	if _, ok := uniqueViolation(err); ok {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a wallet by ID.
func (r *WalletRepository) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// GetForUpdate retrieves a wallet and locks its row until the transaction ends.
func (r *WalletRepository) GetForUpdate(ctx context.Context, id string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

// GetByExternalCustomer retrieves the wallet linked to a provider customer.
func (r *WalletRepository) GetByExternalCustomer(ctx context.Context, customerID string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE external_customer_id = $1`, customerID)
}

func (r *WalletRepository) getOne(ctx context.Context, query string, arg string) (*domain.Wallet, error) {
	var w domain.Wallet
	var customer, defaultPM sql.NullString

	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&w.ID,
		&w.UserID,
		&w.Name,
		&w.Balance,
		&customer,
		&defaultPM,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	w.ExternalCustomerID = stringPtr(customer)
	w.DefaultPaymentMethod = stringPtr(defaultPM)
	return &w, nil
}

// ApplyDelta adds delta to the balance and returns the new balance.
func (r *WalletRepository) ApplyDelta(ctx context.Context, id string, delta int64) (int64, error) {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2 RETURNING balance`

	var balance int64
	if err := r.q.QueryRowContext(ctx, query, delta, id).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// ApplyDeltaIfBalance adds delta only if the current balance equals expected.
func (r *WalletRepository) ApplyDeltaIfBalance(ctx context.Context, id string, delta, expected int64) (int64, error) {
	query := `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance = $3
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRowContext(ctx, query, delta, id, expected).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// No row updated: either the wallet is gone or the balance moved.
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, repository.ErrNotFound
	}
	return 0, repository.ErrBalanceMismatch
}

// SetExternalCustomer links a provider customer to the wallet.
func (r *WalletRepository) SetExternalCustomer(ctx context.Context, id, customerID string) error {
	query := `UPDATE wallets SET external_customer_id = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, customerID, id)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return repository.ErrDuplicate
		}
		return err
	}
	return expectOneRow(result)
}

// SetDefaultPaymentMethod sets or clears the default payment method.
func (r *WalletRepository) SetDefaultPaymentMethod(ctx context.Context, id string, paymentMethodID *string) error {
	query := `UPDATE wallets SET default_payment_method = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, nullString(paymentMethodID), id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
