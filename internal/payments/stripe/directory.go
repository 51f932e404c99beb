package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
)

// Directory reads customers from the Stripe API.
type Directory struct {
	client customer.Client
}

// NewDirectory creates a Directory using the given secret API key.
func NewDirectory(apiKey string) *Directory {
	return NewDirectoryWithBackend(apiKey, stripe.GetBackend(stripe.APIBackend))
}

// NewDirectoryWithBackend creates a Directory against a specific backend.
func NewDirectoryWithBackend(apiKey string, backend stripe.Backend) *Directory {
	return &Directory{client: customer.Client{B: backend, Key: apiKey}}
}

// WalletIDForCustomer returns the wallet id stored in the customer's
// metadata. Deleted customers have none.
func (d *Directory) WalletIDForCustomer(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := d.client.Get(customerID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve stripe customer: %w", err)
	}
	if c.Deleted {
		return "", nil
	}
	return c.Metadata[walletMetadataKey], nil
}
