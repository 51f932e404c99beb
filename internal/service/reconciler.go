package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/redis"
	"scootr/internal/repository"
)

// CustomerDirectory looks up provider customers.
type CustomerDirectory interface {
	// WalletIDForCustomer returns the wallet id recorded on the provider
	// customer, or "" if it has none.
	WalletIDForCustomer(ctx context.Context, customerID string) (string, error)
}

// ReconcilerConfig tunes the reconciler.
type ReconcilerConfig struct {
	// ConditionalCreditRetries is how many times a payment credit re-reads the
	// balance after losing a race with another balance change.
	ConditionalCreditRetries int
}

// ReconcilerService applies provider events to wallets and payment methods.
// Every handler may run more than once for the same event and ends in the
// same state.
type ReconcilerService struct {
	db        repository.Database
	ledger    *LedgerService
	events    redis.EventStoreInterface
	customers CustomerDirectory
	cfg       ReconcilerConfig
	logger    *slog.Logger
}

// NewReconcilerService creates a new ReconcilerService. events and customers
// are optional.
func NewReconcilerService(
	db repository.Database,
	ledger *LedgerService,
	events redis.EventStoreInterface,
	customers CustomerDirectory,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *ReconcilerService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConditionalCreditRetries < 0 {
		cfg.ConditionalCreditRetries = 0
	}
	return &ReconcilerService{
		db:        db,
		ledger:    ledger,
		events:    events,
		customers: customers,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handle reconciles one event. A nil event is acknowledged without effect.
func (s *ReconcilerService) Handle(ctx context.Context, evt Event) error {
	if evt == nil {
		return nil
	}

	logger := s.logger.With("event_id", evt.ProviderEventID(), "event_kind", evt.Kind())

	if s.alreadyProcessed(ctx, logger, evt.ProviderEventID()) {
		logger.InfoContext(ctx, "event already processed")
		return nil
	}

	var err error
	switch e := evt.(type) {
	case PaymentSucceeded:
		err = s.paymentSucceeded(ctx, logger, e)
	case CustomerCreated:
		err = s.customerCreated(ctx, e)
	case CustomerUpdated:
		err = s.customerUpdated(ctx, e)
	case PaymentMethodAttached:
		err = s.paymentMethodAttached(ctx, e)
	case PaymentMethodUpdated:
		err = s.paymentMethodUpdated(ctx, e)
	case PaymentMethodDetached:
		err = s.paymentMethodDetached(ctx, logger, e)
	default:
		err = fmt.Errorf("%w: unhandled event type %T", ErrInternal, evt)
	}

	if err != nil {
		if errors.Is(err, ErrInternal) {
			logger.ErrorContext(ctx, "event reconciliation failed", "error", err)
		} else {
			logger.WarnContext(ctx, "event rejected", "error", err)
		}
		return err
	}

	s.markProcessed(ctx, logger, evt.ProviderEventID())
	return nil
}

func (s *ReconcilerService) alreadyProcessed(ctx context.Context, logger *slog.Logger, eventID string) bool {
	if s.events == nil || eventID == "" {
		return false
	}
	processed, err := s.events.IsProcessed(ctx, eventID)
	if err != nil {
		logger.WarnContext(ctx, "processed-event lookup failed", "error", err)
		return false
	}
	return processed
}

func (s *ReconcilerService) markProcessed(ctx context.Context, logger *slog.Logger, eventID string) {
	if s.events == nil || eventID == "" {
		return
	}
	if err := s.events.MarkProcessed(ctx, eventID); err != nil {
		logger.WarnContext(ctx, "mark event processed", "error", err)
	}
}

// paymentSucceeded credits the wallet once per provider payment id. The
// credit is conditional on the balance read just before it; losing a race
// with a ride debit re-reads and retries.
func (s *ReconcilerService) paymentSucceeded(ctx context.Context, logger *slog.Logger, e PaymentSucceeded) error {
	if e.WalletID == "" {
		return fmt.Errorf("%w: payment %s carries no wallet id", ErrProviderDiverged, e.ExternalID)
	}
	if e.ExternalID == "" {
		return fmt.Errorf("%w: payment without id", ErrBadRequest)
	}

	for attempt := 0; attempt <= s.cfg.ConditionalCreditRetries; attempt++ {
		wallet, err := s.db.Wallets().GetByID(ctx, e.WalletID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: payment %s for unknown wallet %s", ErrProviderDiverged, e.ExternalID, e.WalletID)
			}
			return err
		}

		res, err := s.ledger.ConditionalCredit(ctx, ConditionalCreditRequest{
			CreditRequest: CreditRequest{
				WalletID:   e.WalletID,
				Amount:     e.Amount,
				Reason:     domain.ReasonTopUp,
				ExternalID: e.ExternalID,
			},
			ExpectedBalance: wallet.Balance,
		})
		if err == nil {
			if res.Applied {
				logger.InfoContext(ctx, "wallet topped up", "wallet_id", e.WalletID, "amount", e.Amount, "balance", res.Balance)
			} else {
				logger.InfoContext(ctx, "payment already applied", "wallet_id", e.WalletID, "payment_id", e.ExternalID)
			}
			return nil
		}
		if !errors.Is(err, ErrBalanceChanged) {
			return err
		}
		logger.DebugContext(ctx, "balance changed during top-up, retrying", "attempt", attempt+1)
	}

	return fmt.Errorf("%w: top-up for payment %s kept losing balance races", ErrContention, e.ExternalID)
}

func (s *ReconcilerService) customerCreated(ctx context.Context, e CustomerCreated) error {
	if e.CustomerID == "" {
		return fmt.Errorf("%w: customer without id", ErrBadRequest)
	}
	if e.WalletID == "" {
		return fmt.Errorf("%w: customer %s carries no wallet id", ErrProviderDiverged, e.CustomerID)
	}
	return s.linkCustomer(ctx, e.WalletID, e.CustomerID)
}

func (s *ReconcilerService) linkCustomer(ctx context.Context, walletID, customerID string) error {
	err := s.db.Wallets().SetExternalCustomer(ctx, walletID, customerID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: customer %s references unknown wallet %s", ErrProviderDiverged, customerID, walletID)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: customer %s is already linked to another wallet", ErrProviderDiverged, customerID)
	}
	return err
}

func (s *ReconcilerService) customerUpdated(ctx context.Context, e CustomerUpdated) error {
	walletID, err := s.resolveWallet(ctx, e.CustomerID)
	if err != nil {
		return err
	}

	err = s.db.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if e.DefaultPaymentMethodID == "" {
			return store.Wallets().SetDefaultPaymentMethod(ctx, walletID, nil)
		}

		pm, err := store.PaymentMethods().GetByExternalID(ctx, e.DefaultPaymentMethodID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: default payment method %s is unknown", ErrProviderDiverged, e.DefaultPaymentMethodID)
			}
			return err
		}
		if pm.WalletID != walletID {
			return fmt.Errorf("%w: payment method %s belongs to wallet %s, not %s", ErrProviderDiverged, e.DefaultPaymentMethodID, pm.WalletID, walletID)
		}

		return store.Wallets().SetDefaultPaymentMethod(ctx, walletID, &pm.ID)
	})
	return storageError(err)
}

func (s *ReconcilerService) paymentMethodAttached(ctx context.Context, e PaymentMethodAttached) error {
	if e.PaymentMethodID == "" {
		return fmt.Errorf("%w: payment method without id", ErrBadRequest)
	}

	walletID, err := s.resolveWallet(ctx, e.CustomerID)
	if err != nil {
		return err
	}

	_, err = s.db.PaymentMethods().Upsert(ctx, &domain.PaymentMethod{
		ID:         id.NewPaymentMethodID().String(),
		WalletID:   walletID,
		Type:       e.Type,
		Data:       e.Data,
		ExternalID: e.PaymentMethodID,
	})
	return err
}

func (s *ReconcilerService) paymentMethodUpdated(ctx context.Context, e PaymentMethodUpdated) error {
	if err := s.db.PaymentMethods().UpdateData(ctx, e.PaymentMethodID, e.Data); err != nil {
		return notFoundAs(err, ErrPaymentMethodNotFound)
	}
	return nil
}

func (s *ReconcilerService) paymentMethodDetached(ctx context.Context, logger *slog.Logger, e PaymentMethodDetached) error {
	deleted, err := s.db.PaymentMethods().DeleteByExternalID(ctx, e.PaymentMethodID)
	if err != nil {
		return err
	}
	if !deleted {
		logger.InfoContext(ctx, "detached payment method was not stored", "payment_method", e.PaymentMethodID)
	}
	return nil
}

// resolveWallet finds the wallet linked to a provider customer. Events can
// arrive before customer.created, so an unlinked customer is looked up at the
// provider and linked on the way.
func (s *ReconcilerService) resolveWallet(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: event carries no customer", ErrProviderDiverged)
	}

	wallet, err := s.db.Wallets().GetByExternalCustomer(ctx, customerID)
	if err == nil {
		return wallet.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	if s.customers == nil {
		return "", fmt.Errorf("%w: no wallet linked to customer %s", ErrProviderDiverged, customerID)
	}

	walletID, err := s.customers.WalletIDForCustomer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("look up customer %s: %w", customerID, err)
	}
	if walletID == "" {
		return "", fmt.Errorf("%w: customer %s carries no wallet id", ErrProviderDiverged, customerID)
	}

	if err := s.linkCustomer(ctx, walletID, customerID); err != nil {
		return "", err
	}
	return walletID, nil
}
