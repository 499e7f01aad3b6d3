package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

const testPaymentMethod = "pm_card_visa"

// StripeGateway confirms a PaymentIntent against Stripe test mode using the shared test card.
type StripeGateway struct {
	SecretKey string
}

func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if g.SecretKey == "" {
		return nil, errors.New("stripe: secret key not configured")
	}
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyGBP)
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency:           stripe.String(currency),
		PaymentMethod:      stripe.String(testPaymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Metadata: map[string]string{
			"order_id": req.OrderID.String(),
			"buyer_id": req.BuyerID.String(),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + req.OrderID.String())

	stripe.Key = g.SecretKey
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, errors.New("stripe: payment intent status " + string(pi.Status))
	}
	return &CaptureResult{IntentID: pi.ID}, nil
}
