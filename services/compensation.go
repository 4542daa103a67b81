package services

import (
	"context"
	"fmt"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/payments"
	"github.com/malwarebo/mintbridge/utils"
)

type CompensationStore interface {
	Create(ctx context.Context, comp *models.Compensation) error
	GetByID(ctx context.Context, id string) (*models.Compensation, error)
	GetByPurchase(ctx context.Context, purchaseID string) (*models.Compensation, error)
	Update(ctx context.Context, comp *models.Compensation) error
	ListByStatus(ctx context.Context, status models.CompensationStatus) ([]*models.Compensation, error)
}

// CompensationService resolves purchases the orchestrator could not
// complete: refund over the off-chain rail, retry the delivery, or
// hand off to an operator.
type CompensationService struct {
	comps        CompensationStore
	purchases    PurchaseStore
	events       EventStore
	refunders    map[string]payments.Provider
	orchestrator *Orchestrator
	logger       *utils.Logger
}

func CreateCompensationService(comps CompensationStore, purchases PurchaseStore, events EventStore, refunders map[string]payments.Provider, orchestrator *Orchestrator, logger *utils.Logger) *CompensationService {
	if refunders == nil {
		refunders = map[string]payments.Provider{}
	}
	return &CompensationService{
		comps:        comps,
		purchases:    purchases,
		events:       events,
		refunders:    refunders,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (s *CompensationService) Create(ctx context.Context, req *models.CreateCompensationRequest) (*models.Compensation, error) {
	purchase, err := s.purchases.GetByID(ctx, req.PurchaseID)
	if err != nil {
		return nil, err
	}

	switch purchase.Status {
	case models.PurchaseStatusFailed, models.PurchaseStatusCompensationRequired,
		models.PurchaseStatusActionRequired, models.PurchaseStatusMPTSent:
	default:
		return nil, fmt.Errorf("purchase %s is %s and does not need compensation", purchase.ID, purchase.Status)
	}

	switch req.Type {
	case models.CompensationTypeRefund, models.CompensationTypeRetry, models.CompensationTypeManual:
	default:
		return nil, fmt.Errorf("unknown compensation type %q", req.Type)
	}

	comp := &models.Compensation{
		PurchaseID: req.PurchaseID,
		Type:       req.Type,
		Status:     models.CompensationStatusPending,
		Reason:     req.Reason,
	}
	if err := s.comps.Create(ctx, comp); err != nil {
		return nil, err
	}

	if purchase.Status == models.PurchaseStatusFailed {
		from := purchase.Status
		if err := setStatus(purchase, models.PurchaseStatusCompensationRequired); err != nil {
			return nil, err
		}
		if err := s.purchases.Update(ctx, purchase); err != nil {
			return nil, err
		}
		s.appendEvent(ctx, purchase.ID, "compensation_opened", from, purchase.Status)
	}

	return comp, nil
}

func (s *CompensationService) Approve(ctx context.Context, id, approver string) (*models.Compensation, error) {
	comp, err := s.comps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp.Status == models.CompensationStatusApproved {
		return comp, nil
	}
	if comp.Status != models.CompensationStatusPending {
		return nil, fmt.Errorf("compensation %s is %s and cannot be approved", id, comp.Status)
	}

	comp.Status = models.CompensationStatusApproved
	comp.ApprovedBy = approver
	if err := s.comps.Update(ctx, comp); err != nil {
		return nil, err
	}
	return comp, nil
}

// Execute carries out an approved compensation.
func (s *CompensationService) Execute(ctx context.Context, id string) (*models.Compensation, error) {
	comp, err := s.comps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp.Status == models.CompensationStatusExecuted {
		return comp, nil
	}
	if comp.Status != models.CompensationStatusApproved {
		return nil, utils.ErrNotApproved
	}

	switch comp.Type {
	case models.CompensationTypeRefund:
		err = s.executeRefund(ctx, comp)
	case models.CompensationTypeRetry:
		err = s.executeRetry(ctx, comp)
	case models.CompensationTypeManual:
		// Resolution happens outside the system; the row just records
		// that an operator took it.
		comp.Status = models.CompensationStatusExecuted
		err = s.comps.Update(ctx, comp)
	}
	if err != nil {
		return comp, err
	}
	return comp, nil
}

func (s *CompensationService) ListPending(ctx context.Context) ([]*models.Compensation, error) {
	return s.comps.ListByStatus(ctx, models.CompensationStatusPending)
}

func (s *CompensationService) executeRefund(ctx context.Context, comp *models.Compensation) error {
	purchase, err := s.purchases.GetByID(ctx, comp.PurchaseID)
	if err != nil {
		return err
	}

	refunder, ok := s.refunders[purchase.PayProvider]
	if !ok {
		return fmt.Errorf("no refund rail configured for provider %q", purchase.PayProvider)
	}

	// Refuse before money moves: a purchase that reached a terminal
	// status since approval must not be refunded on top of it.
	if !purchase.Status.CanTransitionTo(models.PurchaseStatusRefunded) {
		return fmt.Errorf("%w: %s -> %s", utils.ErrInvalidTransition, purchase.Status, models.PurchaseStatusRefunded)
	}

	result, err := refunder.Refund(ctx, &payments.RefundRequest{
		Reference: purchase.PayReference,
		Amount:    purchase.PayAmount,
		Currency:  purchase.PayCurrency,
		Reason:    comp.Reason,
	})
	if err != nil {
		comp.Status = models.CompensationStatusFailed
		if updateErr := s.comps.Update(ctx, comp); updateErr != nil {
			s.logger.Error(ctx, "failed to mark compensation failed", map[string]interface{}{
				"compensation_id": comp.ID,
				"error":           updateErr.Error(),
			})
		}
		return fmt.Errorf("refund failed: %w", err)
	}

	comp.Status = models.CompensationStatusExecuted
	comp.ResultTxHash = result.RefundID
	if err := s.comps.Update(ctx, comp); err != nil {
		return err
	}

	from := purchase.Status
	if err := setStatus(purchase, models.PurchaseStatusRefunded); err != nil {
		return err
	}
	purchase.LastError = ""
	if err := s.purchases.Update(ctx, purchase); err != nil {
		return err
	}
	s.appendEvent(ctx, purchase.ID, "refunded", from, purchase.Status)

	return nil
}

func (s *CompensationService) executeRetry(ctx context.Context, comp *models.Compensation) error {
	result, err := s.orchestrator.ProcessAssetDelivery(ctx, comp.PurchaseID)
	if err != nil {
		comp.Status = models.CompensationStatusFailed
		if updateErr := s.comps.Update(ctx, comp); updateErr != nil {
			s.logger.Error(ctx, "failed to mark compensation failed", map[string]interface{}{
				"compensation_id": comp.ID,
				"error":           updateErr.Error(),
			})
		}
		return err
	}

	comp.Status = models.CompensationStatusExecuted
	comp.ResultTxHash = result.AssetTxHash
	return s.comps.Update(ctx, comp)
}

func (s *CompensationService) appendEvent(ctx context.Context, purchaseID, eventType string, from, to models.PurchaseStatus) {
	err := s.events.Append(ctx, &models.PurchaseEvent{
		PurchaseID:  purchaseID,
		EventType:   eventType,
		FromState:   from,
		ToState:     to,
		TriggeredBy: "compensation",
	})
	if err != nil {
		s.logger.Error(ctx, "failed to append purchase event", map[string]interface{}{
			"purchase_id": purchaseID,
			"event_type":  eventType,
			"error":       err.Error(),
		})
	}
}
