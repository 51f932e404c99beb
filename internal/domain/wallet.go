package domain

import (
	"encoding/json"
	"time"
)

// Wallet is a user's prepaid balance.
// Balance is in the smallest currency unit and is changed only through the
// ledger primitives.
type Wallet struct {
	ID                   string
	UserID               string
	Name                 string
	Balance              int64
	ExternalCustomerID   *string
	DefaultPaymentMethod *string
	CreatedAt            time.Time
}

// TransactionReason classifies a ledger entry.
type TransactionReason string

const (
	ReasonTopUp    TransactionReason = "top_up"
	ReasonRideFare TransactionReason = "ride_fare"
	ReasonRefund   TransactionReason = "refund"
)

// Valid reports whether r is one of the known reasons.
func (r TransactionReason) Valid() bool {
	switch r {
	case ReasonTopUp, ReasonRideFare, ReasonRefund:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. Amount is signed: debits are
// negative. At most one transaction exists per ExternalID.
type Transaction struct {
	ID         string
	WalletID   string
	Amount     int64
	Reason     TransactionReason
	ExternalID *string
	Timestamp  time.Time
}

// PaymentMethod is a provider-side payment instrument attached to a wallet.
// Data is the provider's opaque description of the instrument.
type PaymentMethod struct {
	ID         string
	WalletID   string
	Type       string
	Data       json.RawMessage
	ExternalID string
}
