package service

import "encoding/json"

// Event is a payment provider notification. The set of implementations is
// closed; the reconciler dispatches on the concrete type.
type Event interface {
	// ProviderEventID is the provider's unique id for this delivery's event.
	ProviderEventID() string
	// Kind names the event for logs.
	Kind() string
	isEvent()
}

// PaymentSucceeded reports a completed top-up payment.
type PaymentSucceeded struct {
	EventID    string
	WalletID   string
	Amount     int64  // ledger minor units, already normalized
	ExternalID string // provider payment id, used for dedup
}

// CustomerCreated links a provider customer to a wallet.
type CustomerCreated struct {
	EventID    string
	CustomerID string
	WalletID   string
}

// CustomerUpdated reports the customer's default payment method.
// An empty DefaultPaymentMethodID clears the wallet default.
type CustomerUpdated struct {
	EventID                string
	CustomerID             string
	DefaultPaymentMethodID string
}

// PaymentMethodAttached reports a payment method added to a customer.
type PaymentMethodAttached struct {
	EventID         string
	PaymentMethodID string
	CustomerID      string
	Type            string
	Data            json.RawMessage
}

// PaymentMethodUpdated reports new provider data for a payment method.
type PaymentMethodUpdated struct {
	EventID         string
	PaymentMethodID string
	Data            json.RawMessage
}

// PaymentMethodDetached reports a payment method removed from its customer.
type PaymentMethodDetached struct {
	EventID         string
	PaymentMethodID string
}

func (e PaymentSucceeded) ProviderEventID() string      { return e.EventID }
func (e CustomerCreated) ProviderEventID() string       { return e.EventID }
func (e CustomerUpdated) ProviderEventID() string       { return e.EventID }
func (e PaymentMethodAttached) ProviderEventID() string { return e.EventID }
func (e PaymentMethodUpdated) ProviderEventID() string  { return e.EventID }
func (e PaymentMethodDetached) ProviderEventID() string { return e.EventID }

func (PaymentSucceeded) Kind() string      { return "payment_succeeded" }
func (CustomerCreated) Kind() string       { return "customer_created" }
func (CustomerUpdated) Kind() string       { return "customer_updated" }
func (PaymentMethodAttached) Kind() string { return "payment_method_attached" }
func (PaymentMethodUpdated) Kind() string  { return "payment_method_updated" }
func (PaymentMethodDetached) Kind() string { return "payment_method_detached" }

func (PaymentSucceeded) isEvent()      {}
func (CustomerCreated) isEvent()       {}
func (CustomerUpdated) isEvent()       {}
func (PaymentMethodAttached) isEvent() {}
func (PaymentMethodUpdated) isEvent()  {}
func (PaymentMethodDetached) isEvent() {}
