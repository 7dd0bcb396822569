// Package gateway wraps the payment processor behind a small interface so
// the charge worker and its tests do not touch the Stripe SDK directly.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

// IntentInput describes the charge to submit.
type IntentInput struct {
	AmountCents   int64
	Currency      string
	CustomerID    string
	TransactionID string
}

// Gateway submits charges to the payment processor.
type Gateway interface {
	// CreatePaymentIntent submits a charge and returns the processor's
	// intent ID. The transaction ID rides along as metadata so webhook
	// events can be matched back to the row that caused them.
	CreatePaymentIntent(ctx context.Context, in IntentInput) (string, error)
}

// StripeGateway is the production Gateway.
type StripeGateway struct{}

// NewStripeGateway configures the Stripe SDK with the account's secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in IntentInput) (string, error) {
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = "usd"
	}
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(currency),
		Customer: stripe.String(in.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("transaction_id", in.TransactionID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("creating payment intent: %w", err)
	}
	return pi.ID, nil
}

// VerifyWebhookEvent checks the Stripe-Signature header against the raw
// request body and returns the parsed event.
func VerifyWebhookEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verifying webhook signature: %w", err)
	}
	return event, nil
}
