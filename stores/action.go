package stores

import (
	"context"
	"errors"

	"github.com/malwarebo/mintbridge/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionStore is the idempotency ledger: one row per idempotency key,
// enforced by a unique constraint.
type ActionStore struct {
	BaseStore
}

func CreateActionStore(db *gorm.DB) *ActionStore {
	return &ActionStore{BaseStore: BaseStore{db: db}}
}

// Find returns the record for a key, or nil when the action has never
// completed.
func (s *ActionStore) Find(ctx context.Context, key string) (*models.ActionRecord, error) {
	var record models.ActionRecord
	err := s.GetDB(ctx).First(&record, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Record writes the outcome for a key. A concurrent duplicate loses
// the unique-constraint race and is dropped; the first writer's row
// stays the source of truth.
func (s *ActionStore) Record(ctx context.Context, record *models.ActionRecord) error {
	return s.GetDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(record).Error
}
