package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Client wraps the Stripe API surface the webhook pipeline needs: session
// lookup by payment intent, charge retrieval, and merging idempotency flags
// into intent metadata.
type Client struct {
	api    *client.API
	logger *slog.Logger
}

func New(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		api:    client.New(apiKey, nil),
		logger: logger,
	}
}

// SessionByIntent returns the checkout session created for the given payment
// intent, or nil when none exists. The event payload's own metadata may be
// stale, the session is authoritative.
func (c *Client) SessionByIntent(ctx context.Context, intentID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.customer")

	iter := c.api.CheckoutSessions.List(params)
	for iter.Next() {
		return iter.CheckoutSession(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list sessions for intent %s: %w", intentID, err)
	}
	return nil, nil
}

func (c *Client) Charge(ctx context.Context, chargeID string) (*stripe.Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx

	ch, err := c.api.Charges.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve charge %s: %w", chargeID, err)
	}
	return ch, nil
}

// UpdateIntentMetadata merges the given keys into the intent's metadata.
// Stripe merges per key, so booking-flow fields already on the intent
// survive the write.
func (c *Client) UpdateIntentMetadata(ctx context.Context, intentID string, metadata map[string]string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	if _, err := c.api.PaymentIntents.Update(intentID, params); err != nil {
		return fmt.Errorf("update intent %s metadata: %w", intentID, err)
	}
	return nil
}
