package payments

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

type StripeProvider struct {
	apiKey string
}

func CreateStripeProvider(apiKey string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{apiKey: apiKey}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

func (p *StripeProvider) Verify(ctx context.Context, reference string) (*Verification, error) {
	pi, err := paymentintent.Get(reference, nil)
	if err != nil {
		return nil, err
	}

	return &Verification{
		Reference: pi.ID,
		Paid:      pi.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:    pi.Amount,
		Currency:  string(pi.Currency),
	}, nil
}

func (p *StripeProvider) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(req.Amount),
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}

	ref, err := refund.New(params)
	if err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundID: ref.ID,
		Status:   string(ref.Status),
	}, nil
}
