package postgres

import (
	"context"
	"database/sql"
	"errors"

	"scootr/internal/domain"
	"scootr/internal/repository"
)

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// Insert appends a ledger entry. A row whose external_id is already recorded
// is skipped by ON CONFLICT, which also covers two deliveries racing on the
// same id: the second waits on the first and then inserts nothing.
func (r *TransactionRepository) Insert(ctx context.Context, t *domain.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (id, wallet_id, amount, reason, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		t.ID,
		t.WalletID,
		t.Amount,
		t.Reason,
		nullString(t.ExternalID),
		t.Timestamp,
	)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByExternalID retrieves the transaction recorded for an external ID.
func (r *TransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, reason, external_id, created_at
		FROM transactions WHERE external_id = $1
	`

	t, err := scanTransaction(r.q.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListByWallet retrieves a wallet's transactions, newest first.
func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, wallet_id, amount, reason, external_id, created_at
		FROM transactions WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2
	`

	rows, err := r.q.QueryContext(ctx, query, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var externalID sql.NullString

	if err := row.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Reason, &externalID, &t.Timestamp); err != nil {
		return nil, err
	}
	t.ExternalID = stringPtr(externalID)
	return &t, nil
}
