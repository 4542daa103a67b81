package stores

import (
	"context"
	"errors"
	"time"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseStore struct {
	BaseStore
}

func CreatePurchaseStore(db *gorm.DB) *PurchaseStore {
	return &PurchaseStore{BaseStore: BaseStore{db: db}}
}

// CreateIfAbsent inserts the purchase unless a row with the same
// external key already exists. The returned bool is true when this
// call created the row. The existing row is returned unchanged on a
// key collision; a repeated create has no side effects.
func (s *PurchaseStore) CreateIfAbsent(ctx context.Context, purchase *models.Purchase) (*models.Purchase, bool, error) {
	res := s.GetDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_key"}},
			DoNothing: true,
		}).
		Create(purchase)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 1 {
		return purchase, true, nil
	}

	existing, err := s.GetByExternalKey(ctx, purchase.ExternalKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PurchaseStore) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.GetDB(ctx).First(&purchase, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *PurchaseStore) GetByExternalKey(ctx context.Context, key string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.GetDB(ctx).First(&purchase, "external_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *PurchaseStore) Update(ctx context.Context, purchase *models.Purchase) error {
	return s.GetDB(ctx).Save(purchase).Error
}

func (s *PurchaseStore) ListByStatus(ctx context.Context, status models.PurchaseStatus) ([]*models.Purchase, error) {
	var purchases []*models.Purchase
	if err := s.GetDB(ctx).Where("status = ?", status).Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// AcquireLease claims the purchase for one worker via a single
// conditional update. It succeeds only when the row is in one of the
// given states and not held by a live lease; a lease older than the
// TTL counts as available. Under a race exactly one caller sees
// RowsAffected == 1.
func (s *PurchaseStore) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration, states []models.PurchaseStatus) (bool, error) {
	now := time.Now()
	stale := now.Add(-ttl)

	res := s.GetDB(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status IN ? AND (locked_at IS NULL OR locked_at < ?)", id, states, stale).
		Updates(map[string]interface{}{
			"locked_at": now,
			"locked_by": owner,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLease clears the lease if the caller still owns it. Releasing
// a lease that was already reclaimed is a no-op.
func (s *PurchaseStore) ReleaseLease(ctx context.Context, id, owner string) error {
	return s.GetDB(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND locked_by = ?", id, owner).
		Updates(map[string]interface{}{
			"locked_at": nil,
			"locked_by": "",
		}).Error
}

// RenewLease extends a held lease.
func (s *PurchaseStore) RenewLease(ctx context.Context, id, owner string) (bool, error) {
	res := s.GetDB(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND locked_by = ?", id, owner).
		Update("locked_at", time.Now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
