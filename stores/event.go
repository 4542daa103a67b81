package stores

import (
	"context"

	"github.com/malwarebo/mintbridge/models"
	"gorm.io/gorm"
)

type EventStore struct {
	BaseStore
}

func CreateEventStore(db *gorm.DB) *EventStore {
	return &EventStore{BaseStore: BaseStore{db: db}}
}

func (s *EventStore) Append(ctx context.Context, event *models.PurchaseEvent) error {
	return s.GetDB(ctx).Create(event).Error
}

func (s *EventStore) ListByPurchase(ctx context.Context, purchaseID string) ([]*models.PurchaseEvent, error) {
	var events []*models.PurchaseEvent
	if err := s.GetDB(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
