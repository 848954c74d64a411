package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
)

// ErrPaymentDeclined indicates the external payment collaborator rejected
// the charge.
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentRequest describes one auto-renewal charge.
type PaymentRequest struct {
	UserID           string
	StripeCustomerID string
	BundleID         string
	AmountUSDCents   int64
	AttemptID        string
}

// PaymentClient charges a stored payment method without the user present.
// Implementations must not be called while holding any ledger lock.
type PaymentClient interface {
	// Charge returns the external payment reference on success.
	Charge(ctx context.Context, req PaymentRequest) (string, error)
}

// StripePaymentClient charges via an off-session Stripe PaymentIntent.
// Credits are granted when the payment_intent.succeeded webhook arrives,
// not on the synchronous response.
type StripePaymentClient struct{}

// NewStripePaymentClient creates a Stripe-backed payment client. The
// package-level stripe.Key must already be set.
func NewStripePaymentClient() *StripePaymentClient {
	return &StripePaymentClient{}
}

func (c *StripePaymentClient) Charge(ctx context.Context, req PaymentRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(req.AmountUSDCents),
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		Customer:   stripe.String(req.StripeCustomerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("bundle_id", req.BundleID)
	params.AddMetadata("renewal_attempt_id", req.AttemptID)

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return "", fmt.Errorf("%w: %s", ErrPaymentDeclined, stripeErr.Code)
		}
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}
	return pi.ID, nil
}
