package postgres

import (
	"context"
	"database/sql"
	"errors"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

// PaymentMethodRepository is a PostgreSQL implementation of repository.PaymentMethodRepository.
type PaymentMethodRepository struct {
	q Querier
}

// Upsert inserts a payment method or overwrites the row with the same external ID.
func (r *PaymentMethodRepository) Upsert(ctx context.Context, pm *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	query := `
		INSERT INTO payment_methods (id, wallet_id, type, data, external_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE
		SET wallet_id = EXCLUDED.wallet_id,
		    type = EXCLUDED.type,
		    data = EXCLUDED.data,
		    updated_at = NOW()
		RETURNING id, wallet_id, type, data, external_id
	`

	stored, err := scanPaymentMethod(r.q.QueryRowContext(ctx, query, pm.ID, pm.WalletID, pm.Type, jsonOrEmpty(pm.Data), pm.ExternalID))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetByExternalID retrieves a payment method by provider ID.
func (r *PaymentMethodRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error) {
	query := `SELECT id, wallet_id, type, data, external_id FROM payment_methods WHERE external_id = $1`

	pm, err := scanPaymentMethod(r.q.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return pm, nil
}

// UpdateData replaces the provider data of a payment method.
func (r *PaymentMethodRepository) UpdateData(ctx context.Context, externalID string, data []byte) error {
	query := `UPDATE payment_methods SET data = $1, updated_at = NOW() WHERE external_id = $2`

	result, err := r.q.ExecContext(ctx, query, jsonOrEmpty(data), externalID)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// DeleteByExternalID removes a payment method. The foreign key on
// wallets.default_payment_method clears defaults that point at it.
func (r *PaymentMethodRepository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM payment_methods WHERE external_id = $1`, externalID)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByWallet retrieves the payment methods attached to a wallet.
func (r *PaymentMethodRepository) ListByWallet(ctx context.Context, walletID string) ([]*domain.PaymentMethod, error) {
	query := `SELECT id, wallet_id, type, data, external_id FROM payment_methods WHERE wallet_id = $1 ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []*domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func scanPaymentMethod(row rowScanner) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	var data []byte

	if err := row.Scan(&pm.ID, &pm.WalletID, &pm.Type, &data, &pm.ExternalID); err != nil {
		return nil, err
	}
	pm.Data = data
	return &pm, nil
}

func jsonOrEmpty(data []byte) string {
	if len(data) == 0 {
		return "{}"
	}
	return string(data)
}
