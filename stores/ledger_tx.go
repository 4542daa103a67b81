package stores

import (
	"context"
	"errors"

	"github.com/malwarebo/mintbridge/models"
	"gorm.io/gorm"
)

type LedgerTxStore struct {
	BaseStore
}

func CreateLedgerTxStore(db *gorm.DB) *LedgerTxStore {
	return &LedgerTxStore{BaseStore: BaseStore{db: db}}
}

// Append records one attempted leg. The table is insert-only.
func (s *LedgerTxStore) Append(ctx context.Context, tx *models.LedgerTx) error {
	return s.GetDB(ctx).Create(tx).Error
}

func (s *LedgerTxStore) ListByPurchase(ctx context.Context, purchaseID string) ([]*models.LedgerTx, error) {
	var txs []*models.LedgerTx
	if err := s.GetDB(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// ValidatedLeg returns the validated row for a leg, or nil. Callers
// use it to refuse re-submitting a leg that already landed.
func (s *LedgerTxStore) ValidatedLeg(ctx context.Context, purchaseID string, leg int) (*models.LedgerTx, error) {
	var tx models.LedgerTx
	err := s.GetDB(ctx).
		Where("purchase_id = ? AND leg = ? AND status = ?", purchaseID, leg, models.LedgerTxStatusValidated).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
