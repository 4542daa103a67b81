package ledger

import (
	"context"
	"fmt"

	"github.com/malwarebo/mintbridge/models"
)

// Signer turns an unsigned transaction into a signed blob ready for
// submission. Key material never enters this process; implementations
// delegate to an external signing service.
type Signer interface {
	Sign(ctx context.Context, tx map[string]interface{}) (string, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, tx map[string]interface{}) (string, error)

func (f SignerFunc) Sign(ctx context.Context, tx map[string]interface{}) (string, error) {
	return f(ctx, tx)
}

// TransferBuilder composes asset transfer transactions from the
// issuer account to a buyer and hands them to the signer.
type TransferBuilder struct {
	issuerAccount string
	signer        Signer
}

func CreateTransferBuilder(issuerAccount string, signer Signer) *TransferBuilder {
	return &TransferBuilder{issuerAccount: issuerAccount, signer: signer}
}

func (b *TransferBuilder) BuildAssetTransfer(ctx context.Context, purchase *models.Purchase) (string, error) {
	if purchase.Buyer == "" {
		return "", fmt.Errorf("purchase %s has no buyer account", purchase.ID)
	}
	if purchase.AssetCode == "" {
		return "", fmt.Errorf("purchase %s has no asset code", purchase.ID)
	}

	issuer := purchase.AssetIssuer
	if issuer == "" {
		issuer = b.issuerAccount
	}

	tx := map[string]interface{}{
		"TransactionType": "Payment",
		"Account":         b.issuerAccount,
		"Destination":     purchase.Buyer,
		"Amount": map[string]interface{}{
			"currency": purchase.AssetCode,
			"issuer":   issuer,
			"value":    fmt.Sprintf("%d", purchase.Quantity),
		},
	}

	return b.signer.Sign(ctx, tx)
}
