// Package stripe translates Stripe webhooks and customer lookups into the
// provider-neutral types the reconciler consumes.
package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"scootr/internal/service"
)

// walletMetadataKey is the metadata entry carrying our wallet id on Stripe
// customers and payment intents.
const walletMetadataKey = "wallet_id"

// Parser verifies webhook payloads and maps them to reconciler events.
type Parser struct {
	secret      string
	amountScale int64
}

// NewParser creates a Parser for the endpoint signing secret. amountScale
// converts Stripe amounts into ledger minor units; values below 1 mean 1.
func NewParser(secret string, amountScale int64) *Parser {
	if amountScale < 1 {
		amountScale = 1
	}
	return &Parser{secret: secret, amountScale: amountScale}
}

// Parse verifies the Stripe-Signature header and decodes the event. Event
// types the reconciler does not handle yield a nil event and no error.
func (p *Parser) Parse(payload []byte, signatureHeader string) (service.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidSignature, err)
	}
	if evt.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", service.ErrBadRequest, evt.ID)
	}
	raw := evt.Data.Raw

	switch string(evt.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := decode(raw, &pi); err != nil {
			return nil, err
		}
		return service.PaymentSucceeded{
			EventID:    evt.ID,
			WalletID:   pi.Metadata[walletMetadataKey],
			Amount:     pi.Amount * p.amountScale,
			ExternalID: pi.ID,
		}, nil

	case "customer.created":
		var c stripe.Customer
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		return service.CustomerCreated{
			EventID:    evt.ID,
			CustomerID: c.ID,
			WalletID:   c.Metadata[walletMetadataKey],
		}, nil

	case "customer.updated":
		var c stripe.Customer
		if err := decode(raw, &c); err != nil {
			return nil, err
		}
		out := service.CustomerUpdated{EventID: evt.ID, CustomerID: c.ID}
		if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
			out.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
		}
		return out, nil

	case "payment_method.attached":
		pm, data, err := decodePaymentMethod(raw)
		if err != nil {
			return nil, err
		}
		out := service.PaymentMethodAttached{
			EventID:         evt.ID,
			PaymentMethodID: pm.ID,
			Type:            string(pm.Type),
			Data:            data,
		}
		if pm.Customer != nil {
			out.CustomerID = pm.Customer.ID
		}
		return out, nil

	case "payment_method.updated", "payment_method.automatically_updated":
		pm, data, err := decodePaymentMethod(raw)
		if err != nil {
			return nil, err
		}
		return service.PaymentMethodUpdated{EventID: evt.ID, PaymentMethodID: pm.ID, Data: data}, nil

	case "payment_method.detached":
		pm, _, err := decodePaymentMethod(raw)
		if err != nil {
			return nil, err
		}
		return service.PaymentMethodDetached{EventID: evt.ID, PaymentMethodID: pm.ID}, nil
	}

	return nil, nil
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode event object: %v", service.ErrBadRequest, err)
	}
	return nil
}

// decodePaymentMethod also returns the type-specific sub-object, e.g. the
// "card" object of a card payment method, which is what we store as data.
func decodePaymentMethod(raw json.RawMessage) (*stripe.PaymentMethod, json.RawMessage, error) {
	var pm stripe.PaymentMethod
	if err := decode(raw, &pm); err != nil {
		return nil, nil, err
	}

	var fields map[string]json.RawMessage
	if err := decode(raw, &fields); err != nil {
		return nil, nil, err
	}
	data, ok := fields[string(pm.Type)]
	if !ok || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	return &pm, data, nil
}
