package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

var hundred = decimal.NewFromInt(100)

// StripeGateway charges a card PaymentIntent and refunds it on void.
type StripeGateway struct {
	currency      string
	paymentMethod string

	createIntent func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	createRefund func(params *stripe.RefundParams) (*stripe.Refund, error)
}

// NewStripeGateway sets the process-wide Stripe key and returns a gateway
// charging paymentMethod in currency.
func NewStripeGateway(secretKey, currency, paymentMethod string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		currency:      currency,
		paymentMethod: paymentMethod,
		createIntent:  paymentintent.New,
		createRefund:  refund.New,
	}
}

// MinorUnits converts an amount to cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func (g *StripeGateway) ProcessPayment(ctx context.Context, customerID *int64, amount decimal.Decimal) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(MinorUnits(amount)),
		Currency:           stripe.String(g.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if g.paymentMethod != "" {
		params.PaymentMethod = stripe.String(g.paymentMethod)
	}
	if customerID != nil {
		params.AddMetadata("customer_id", strconv.FormatInt(*customerID, 10))
	}

	pi, err := g.createIntent(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return Charge{Approved: false}, nil
		}
		return Charge{}, fmt.Errorf("error creating PaymentIntent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return Charge{Approved: true, Reference: pi.ID}, nil
	default:
		return Charge{Approved: false, Reference: pi.ID}, nil
	}
}

func (g *StripeGateway) VoidPayment(ctx context.Context, reference string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
	}
	if _, err := g.createRefund(params); err != nil {
		return fmt.Errorf("error refunding PaymentIntent %s: %w", reference, err)
	}
	return nil
}
