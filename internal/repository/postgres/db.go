package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"scootr/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier             = (*sql.DB)(nil)
	_ Querier             = (*sql.Tx)(nil)
	_ repository.Database = (*DB)(nil)
)

// PostgreSQL error codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// store binds every repository to one Querier.
type store struct {
	q Querier
}

func (s store) Wallets() repository.WalletRepository               { return &WalletRepository{q: s.q} }
func (s store) Transactions() repository.TransactionRepository     { return &TransactionRepository{q: s.q} }
func (s store) Rides() repository.RideRepository                   { return &RideRepository{q: s.q} }
func (s store) Waypoints() repository.WaypointRepository           { return &WaypointRepository{q: s.q} }
func (s store) Vehicles() repository.VehicleRepository             { return &VehicleRepository{q: s.q} }
func (s store) PaymentMethods() repository.PaymentMethodRepository { return &PaymentMethodRepository{q: s.q} }

// DB is the PostgreSQL implementation of repository.Database.
type DB struct {
	store
	db         *sql.DB
	maxRetries int
	logger     *slog.Logger
}

// NewDB wraps a connection pool. maxRetries bounds how many times a
// transaction is re-run after a serialization failure or deadlock.
func NewDB(db *sql.DB, maxRetries int, logger *slog.Logger) *DB {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{store: store{q: db}, db: db, maxRetries: maxRetries, logger: logger}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by the
// repositories provide the stronger guarantees where needed.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	for attempt := 0; ; attempt++ {
		err := d.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt >= d.maxRetries {
			return fmt.Errorf("%w: %v", repository.ErrContention, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.WarnContext(ctx, "retrying transaction", "attempt", attempt+1, "error", err)
	}
}

func (d *DB) runTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

// uniqueViolation reports the violated constraint name, if err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
