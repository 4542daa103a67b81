package payments

import (
	"context"
)

// Verification is the rail's view of one off-chain payment.
type Verification struct {
	Reference string
	Paid      bool
	Amount    int64
	Currency  string
}

type RefundRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Reason    string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Provider is an off-chain payment rail: it can confirm that the
// buyer's payment landed and push the money back during compensation.
type Provider interface {
	Name() string
	Verify(ctx context.Context, reference string) (*Verification, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}
