package ledger

import (
	"context"
)

// SubmitResult is the immediate engine response to a submission.
type SubmitResult struct {
	EngineResult        string
	EngineResultMessage string
	TxHash              string
}

// TxResult is the outcome of querying a transaction by hash. Found is
// false when the ledger does not know the hash yet; that is ambiguous,
// not a failure, because the submission may still be in flight.
type TxResult struct {
	Found        bool
	Validated    bool
	EngineResult string
	LedgerIndex  int64
}

// Client is a live connection to one ledger-access endpoint.
type Client interface {
	Submit(ctx context.Context, signedTx string) (*SubmitResult, error)
	QueryTx(ctx context.Context, hash string) (*TxResult, error)
	Ping(ctx context.Context) error
	Endpoint() string
	Close() error
}
