package stores

import (
	"context"
	"errors"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CompensationStore struct {
	BaseStore
}

func CreateCompensationStore(db *gorm.DB) *CompensationStore {
	return &CompensationStore{BaseStore: BaseStore{db: db}}
}

// Create inserts the compensation; at most one exists per purchase.
func (s *CompensationStore) Create(ctx context.Context, comp *models.Compensation) error {
	res := s.GetDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "purchase_id"}},
			DoNothing: true,
		}).
		Create(comp)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrCompensationExists
	}
	return nil
}

func (s *CompensationStore) GetByID(ctx context.Context, id string) (*models.Compensation, error) {
	var comp models.Compensation
	if err := s.GetDB(ctx).First(&comp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comp, nil
}

func (s *CompensationStore) GetByPurchase(ctx context.Context, purchaseID string) (*models.Compensation, error) {
	var comp models.Compensation
	err := s.GetDB(ctx).First(&comp, "purchase_id = ?", purchaseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

func (s *CompensationStore) Update(ctx context.Context, comp *models.Compensation) error {
	return s.GetDB(ctx).Save(comp).Error
}

func (s *CompensationStore) ListByStatus(ctx context.Context, status models.CompensationStatus) ([]*models.Compensation, error) {
	var comps []*models.Compensation
	if err := s.GetDB(ctx).Where("status = ?", status).Find(&comps).Error; err != nil {
		return nil, err
	}
	return comps, nil
}
