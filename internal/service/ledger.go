package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/repository"
)

// defaultTransactionsLimit caps transaction listings.
const defaultTransactionsLimit = 100

// LedgerService owns wallet balances. Every balance change locks the wallet
// row, records a transaction and updates the balance in one database
// transaction.
type LedgerService struct {
	db     repository.Database
	now    func() time.Time
	logger *slog.Logger

	debits           metric.Int64Counter
	credits          metric.Int64Counter
	duplicateCredits metric.Int64Counter
	casMismatches    metric.Int64Counter
}

// NewLedgerService creates a new LedgerService. The meter records ledger
// activity; pass a noop meter to disable metrics.
func NewLedgerService(db repository.Database, meter metric.Meter, logger *slog.Logger, now func() time.Time) (*LedgerService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	s := &LedgerService{db: db, now: now, logger: logger}

	var err error
	if s.debits, err = meter.Int64Counter("ledger.debits", metric.WithDescription("Debit transactions recorded")); err != nil {
		return nil, err
	}
	if s.credits, err = meter.Int64Counter("ledger.credits", metric.WithDescription("Credit transactions recorded")); err != nil {
		return nil, err
	}
	if s.duplicateCredits, err = meter.Int64Counter("ledger.credits.duplicate", metric.WithDescription("Credits skipped because the external id was already applied")); err != nil {
		return nil, err
	}
	if s.casMismatches, err = meter.Int64Counter("ledger.conditional.mismatch", metric.WithDescription("Conditional credits rejected on a stale balance")); err != nil {
		return nil, err
	}

	return s, nil
}

// DebitRequest contains the parameters for a debit.
type DebitRequest struct {
	WalletID string
	Amount   int64 // positive, subtracted from the balance
	Reason   domain.TransactionReason
}

// CreditRequest contains the parameters for a credit. A non-empty ExternalID
// makes the credit idempotent.
type CreditRequest struct {
	WalletID   string
	Amount     int64
	Reason     domain.TransactionReason
	ExternalID string
}

// ConditionalCreditRequest is a CreditRequest that only applies while the
// wallet balance still equals ExpectedBalance.
type ConditionalCreditRequest struct {
	CreditRequest
	ExpectedBalance int64
}

// LedgerResult is the outcome of a ledger mutation.
// Applied is false when a credit was absorbed as a duplicate; Transaction is
// then the previously recorded entry.
type LedgerResult struct {
	Transaction *domain.Transaction
	Balance     int64
	Applied     bool
}

// OpenWallet creates an empty wallet for a user.
func (s *LedgerService) OpenWallet(ctx context.Context, userID, name string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}

	wallet := &domain.Wallet{
		ID:        id.NewWalletID().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}

	if err := s.db.Wallets().Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "wallet opened", "wallet_id", wallet.ID, "user_id", userID)
	return wallet, nil
}

// GetWallet retrieves a wallet owned by callerID.
func (s *LedgerService) GetWallet(ctx context.Context, walletID, callerID string) (*domain.Wallet, error) {
	wallet, err := s.db.Wallets().GetByID(ctx, walletID)
	if err != nil {
		return nil, notFoundAs(err, ErrWalletNotFound)
	}
	if wallet.UserID != callerID {
		return nil, ErrNotOwner
	}
	return wallet, nil
}

// Transactions lists the latest ledger entries of a wallet owned by callerID.
func (s *LedgerService) Transactions(ctx context.Context, walletID, callerID string) ([]*domain.Transaction, error) {
	if _, err := s.GetWallet(ctx, walletID, callerID); err != nil {
		return nil, err
	}
	return s.db.Transactions().ListByWallet(ctx, walletID, defaultTransactionsLimit)
}

// Debit subtracts an amount from a wallet in its own transaction.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (*LedgerResult, error) {
	var res *LedgerResult
	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		res, err = s.ApplyDebit(ctx, store, req)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.recordDebit(ctx, req.Reason)
	return res, nil
}

// ApplyDebit performs a debit inside the caller's transaction.
// Ride fares may take the balance below zero; other reasons may not.
func (s *LedgerService) ApplyDebit(ctx context.Context, store repository.Store, req DebitRequest) (*LedgerResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.Reason.Valid() {
		return nil, ErrInvalidReason
	}

	wallet, err := store.Wallets().GetForUpdate(ctx, req.WalletID)
	if err != nil {
		return nil, notFoundAs(err, ErrWalletNotFound)
	}

	if req.Reason != domain.ReasonRideFare && wallet.Balance < req.Amount {
		return nil, ErrInsufficientBalance
	}

	txn := s.newTransaction(req.WalletID, -req.Amount, req.Reason, "")
	if _, err := store.Transactions().Insert(ctx, txn); err != nil {
		return nil, fmt.Errorf("record debit: %w", err)
	}

	balance, err := store.Wallets().ApplyDelta(ctx, req.WalletID, -req.Amount)
	if err != nil {
		return nil, fmt.Errorf("apply debit: %w", err)
	}

	return &LedgerResult{Transaction: txn, Balance: balance, Applied: true}, nil
}

// Credit adds an amount to a wallet. A repeated credit with the same external
// id succeeds without changing the balance.
func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (*LedgerResult, error) {
	var res *LedgerResult
	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		res, err = s.ApplyCredit(ctx, store, req)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.recordCredit(ctx, req.Reason, res.Applied)
	return res, nil
}

// ApplyCredit performs a credit inside the caller's transaction.
func (s *LedgerService) ApplyCredit(ctx context.Context, store repository.Store, req CreditRequest) (*LedgerResult, error) {
	wallet, txn, dup, err := s.lockAndRecordCredit(ctx, store, req)
	if err != nil || dup != nil {
		return dup, err
	}

	balance, err := store.Wallets().ApplyDelta(ctx, wallet.ID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("apply credit: %w", err)
	}

	return &LedgerResult{Transaction: txn, Balance: balance, Applied: true}, nil
}

// ConditionalCredit adds an amount only if the balance still equals the
// expected value at write time. A stale expectation fails with
// ErrBalanceChanged and nothing is written. A duplicate external id succeeds
// without changing the balance, whatever the expected balance.
func (s *LedgerService) ConditionalCredit(ctx context.Context, req ConditionalCreditRequest) (*LedgerResult, error) {
	var res *LedgerResult
	err := s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		res, err = s.ApplyConditionalCredit(ctx, store, req)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBalanceChanged) {
			s.casMismatches.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(req.Reason))))
		}
		return nil, storageError(err)
	}

	s.recordCredit(ctx, req.Reason, res.Applied)
	return res, nil
}

// ApplyConditionalCredit performs a conditional credit inside the caller's transaction.
func (s *LedgerService) ApplyConditionalCredit(ctx context.Context, store repository.Store, req ConditionalCreditRequest) (*LedgerResult, error) {
	wallet, txn, dup, err := s.lockAndRecordCredit(ctx, store, req.CreditRequest)
	if err != nil || dup != nil {
		return dup, err
	}

	balance, err := store.Wallets().ApplyDeltaIfBalance(ctx, wallet.ID, req.Amount, req.ExpectedBalance)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceMismatch) {
			return nil, ErrBalanceChanged
		}
		return nil, fmt.Errorf("apply credit: %w", err)
	}

	return &LedgerResult{Transaction: txn, Balance: balance, Applied: true}, nil
}

// lockAndRecordCredit locks the wallet and inserts the credit entry. If the
// external id was already recorded it returns a non-applied result instead.
func (s *LedgerService) lockAndRecordCredit(ctx context.Context, store repository.Store, req CreditRequest) (*domain.Wallet, *domain.Transaction, *LedgerResult, error) {
	if req.Amount <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	if !req.Reason.Valid() {
		return nil, nil, nil, ErrInvalidReason
	}

	wallet, err := store.Wallets().GetForUpdate(ctx, req.WalletID)
	if err != nil {
		return nil, nil, nil, notFoundAs(err, ErrWalletNotFound)
	}

	txn := s.newTransaction(req.WalletID, req.Amount, req.Reason, req.ExternalID)
	inserted, err := store.Transactions().Insert(ctx, txn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("record credit: %w", err)
	}
	if inserted {
		return wallet, txn, nil, nil
	}

	existing, err := store.Transactions().GetByExternalID(ctx, req.ExternalID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load applied credit: %w", err)
	}
	if existing.WalletID != req.WalletID {
		s.logger.WarnContext(ctx, "external id already applied to another wallet",
			"external_id", req.ExternalID, "wallet_id", req.WalletID, "applied_wallet_id", existing.WalletID)
	}

	return wallet, nil, &LedgerResult{Transaction: existing, Balance: wallet.Balance, Applied: false}, nil
}

func (s *LedgerService) newTransaction(walletID string, amount int64, reason domain.TransactionReason, externalID string) *domain.Transaction {
	txn := &domain.Transaction{
		ID:        id.NewTransactionID().String(),
		WalletID:  walletID,
		Amount:    amount,
		Reason:    reason,
		Timestamp: s.now().UTC(),
	}
	if externalID != "" {
		txn.ExternalID = &externalID
	}
	return txn
}

func (s *LedgerService) recordDebit(ctx context.Context, reason domain.TransactionReason) {
	s.debits.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (s *LedgerService) recordCredit(ctx context.Context, reason domain.TransactionReason, applied bool) {
	attrs := metric.WithAttributes(attribute.String("reason", string(reason)))
	if applied {
		s.credits.Add(ctx, 1, attrs)
		return
	}
	s.duplicateCredits.Add(ctx, 1, attrs)
}
