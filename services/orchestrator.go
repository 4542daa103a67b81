package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/payments"
	"github.com/malwarebo/mintbridge/submitter"
	"github.com/malwarebo/mintbridge/utils"
)

// PurchaseStore is the durable purchase table plus its lease lock.
type PurchaseStore interface {
	CreateIfAbsent(ctx context.Context, purchase *models.Purchase) (*models.Purchase, bool, error)
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	Update(ctx context.Context, purchase *models.Purchase) error
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration, states []models.PurchaseStatus) (bool, error)
	ReleaseLease(ctx context.Context, id, owner string) error
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type EventStore interface {
	Append(ctx context.Context, event *models.PurchaseEvent) error
}

type LedgerTxStore interface {
	Append(ctx context.Context, tx *models.LedgerTx) error
	ValidatedLeg(ctx context.Context, purchaseID string, leg int) (*models.LedgerTx, error)
}

type Submitter interface {
	SubmitAndWait(ctx context.Context, signedTx string, opts submitter.Options) (*submitter.Result, error)
}

// TxBuilder produces signed ledger transactions. Signing lives outside
// this system; the orchestrator only asks for a fresh blob.
type TxBuilder interface {
	BuildAssetTransfer(ctx context.Context, purchase *models.Purchase) (string, error)
}

// ActionRules maps engine result codes to the external precondition a
// buyer or operator must fix before delivery can be retried. The two
// seeded codes are not assumed exhaustive; deployments register more.
type ActionRules struct {
	mu   sync.RWMutex
	tags map[string]string
}

func DefaultActionRules() *ActionRules {
	return &ActionRules{tags: map[string]string{
		"tecNO_AUTH": "asset_authorization_missing",
		"tecNO_LINE": "trustline_missing",
	}}
}

func (r *ActionRules) Register(code, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[code] = tag
}

func (r *ActionRules) TagFor(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.tags[code]
	return tag, ok
}

// setStatus advances a purchase along the transition graph. Every
// status mutation in this package goes through it.
func setStatus(p *models.Purchase, next models.PurchaseStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", utils.ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	return nil
}

type OrchestratorConfig struct {
	LeaseTTL time.Duration
	WorkerID string
}

// Orchestrator drives a purchase through its lifecycle. All mutation
// of a purchase row happens here, serialized by the lease lock.
type Orchestrator struct {
	purchases PurchaseStore
	events    EventStore
	ledgerTxs LedgerTxStore
	engine    Submitter
	builder   TxBuilder
	verifiers map[string]payments.Provider
	rules     *ActionRules
	leaseTTL  time.Duration
	workerID  string
	logger    *utils.Logger
}

func CreateOrchestrator(purchases PurchaseStore, events EventStore, ledgerTxs LedgerTxStore, engine Submitter, builder TxBuilder, verifiers map[string]payments.Provider, rules *ActionRules, cfg OrchestratorConfig, logger *utils.Logger) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if rules == nil {
		rules = DefaultActionRules()
	}
	if verifiers == nil {
		verifiers = map[string]payments.Provider{}
	}

	return &Orchestrator{
		purchases: purchases,
		events:    events,
		ledgerTxs: ledgerTxs,
		engine:    engine,
		builder:   builder,
		verifiers: verifiers,
		rules:     rules,
		leaseTTL:  cfg.LeaseTTL,
		workerID:  cfg.WorkerID,
		logger:    logger,
	}
}

// CreateOrGetPurchase creates the purchase for an external key, or
// returns the existing row untouched when the key was seen before.
func (o *Orchestrator) CreateOrGetPurchase(ctx context.Context, req *models.CreatePurchaseRequest) (*models.Purchase, error) {
	if req.ExternalKey == "" {
		return nil, fmt.Errorf("external key is required")
	}
	if req.Buyer == "" {
		return nil, fmt.Errorf("buyer is required")
	}
	if req.AssetCode == "" {
		return nil, fmt.Errorf("asset code is required")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if req.PayAmount <= 0 || req.PayCurrency == "" {
		return nil, fmt.Errorf("payment amount and currency are required")
	}

	status := models.PurchaseStatusPendingPayment
	if req.FundsTxHash != "" {
		status = models.PurchaseStatusFundsConfirmed
	}

	purchase := &models.Purchase{
		ID:           uuid.NewString(),
		ExternalKey:  req.ExternalKey,
		Buyer:        req.Buyer,
		AssetCode:    req.AssetCode,
		AssetIssuer:  req.AssetIssuer,
		Quantity:     req.Quantity,
		PayCurrency:  req.PayCurrency,
		PayAmount:    req.PayAmount,
		PayProvider:  req.PayProvider,
		PayReference: req.PayReference,
		Status:       status,
		FundsTxHash:  req.FundsTxHash,
		Metadata:     req.Metadata,
	}

	created, isNew, err := o.purchases.CreateIfAbsent(ctx, purchase)
	if err != nil {
		return nil, err
	}
	if !isNew {
		return created, nil
	}

	o.appendEvent(ctx, created.ID, "purchase_created", "", status, "api")

	if req.FundsTxHash != "" {
		o.appendLedgerTx(ctx, &models.LedgerTx{
			PurchaseID: created.ID,
			Leg:        models.LegPayment,
			TxHash:     req.FundsTxHash,
			Status:     models.LedgerTxStatusValidated,
		})
	}

	return created, nil
}

// ConfirmFunds moves the purchase to FUNDS_CONFIRMED. Re-confirming
// with the same hash is a no-op; a different hash is a conflict.
func (o *Orchestrator) ConfirmFunds(ctx context.Context, purchaseID, fundsTxHash string) error {
	if fundsTxHash == "" {
		return fmt.Errorf("funds tx hash is required")
	}

	purchase, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}

	if purchase.Status != models.PurchaseStatusPendingPayment {
		if purchase.FundsTxHash == fundsTxHash {
			return nil
		}
		return utils.ErrFundsHashConflict
	}

	if verifier, ok := o.verifiers[purchase.PayProvider]; ok && purchase.PayReference != "" {
		verification, err := verifier.Verify(ctx, purchase.PayReference)
		if err != nil {
			return fmt.Errorf("payment verification failed: %w", err)
		}
		if !verification.Paid {
			return fmt.Errorf("payment %s is not settled on %s", purchase.PayReference, purchase.PayProvider)
		}
	}

	from := purchase.Status
	if err := setStatus(purchase, models.PurchaseStatusFundsConfirmed); err != nil {
		return err
	}
	purchase.FundsTxHash = fundsTxHash
	if err := o.purchases.Update(ctx, purchase); err != nil {
		return err
	}

	o.appendLedgerTx(ctx, &models.LedgerTx{
		PurchaseID: purchase.ID,
		Leg:        models.LegPayment,
		TxHash:     fundsTxHash,
		Status:     models.LedgerTxStatusValidated,
	})
	o.appendEvent(ctx, purchase.ID, "funds_confirmed", from, purchase.Status, "api")

	return nil
}

// ProcessAssetDelivery performs the asset leg exactly once. Concurrent
// callers for the same purchase are serialized by the lease: one wins,
// the rest get ErrLockNotAcquired ("try later", not a failure).
func (o *Orchestrator) ProcessAssetDelivery(ctx context.Context, purchaseID string) (*models.DeliveryResult, error) {
	purchase, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	if result := o.deliveredResult(purchase); result != nil {
		return result, nil
	}

	owner := o.workerID + ":" + uuid.NewString()
	acquired, err := o.purchases.AcquireLease(ctx, purchaseID, owner, o.leaseTTL, []models.PurchaseStatus{
		models.PurchaseStatusFundsConfirmed,
		models.PurchaseStatusActionRequired,
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, utils.ErrLockNotAcquired
	}

	// The lease must not outlive this call, whatever path exits it.
	defer func() {
		if releaseErr := o.purchases.ReleaseLease(context.WithoutCancel(ctx), purchaseID, owner); releaseErr != nil {
			o.logger.Error(ctx, "failed to release purchase lease", map[string]interface{}{
				"purchase_id": purchaseID,
				"error":       releaseErr.Error(),
			})
		}
	}()

	// Re-read under the lease; another worker may have finished the
	// delivery between our first read and the acquisition.
	purchase, err = o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if result := o.deliveredResult(purchase); result != nil {
		return result, nil
	}

	if validated, err := o.ledgerTxs.ValidatedLeg(ctx, purchaseID, models.LegAsset); err != nil {
		return nil, err
	} else if validated != nil {
		// The leg landed but the purchase row was never advanced.
		return o.completeDelivery(ctx, purchase, validated.TxHash, validated.EngineResult, 0)
	}

	signedTx, err := o.builder.BuildAssetTransfer(ctx, purchase)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset transfer: %w", err)
	}

	purchase.RetryCount++

	result, submitErr := o.engine.SubmitAndWait(ctx, signedTx, submitter.Options{
		IdempotencyKey: fmt.Sprintf("purchase:%s:asset-delivery", purchase.ID),
		ActionType:     "asset_delivery",
		Actor:          purchase.AssetIssuer,
		Target:         purchase.Buyer,
		Reissue: func(ctx context.Context) (string, error) {
			return o.builder.BuildAssetTransfer(ctx, purchase)
		},
	})
	if submitErr == nil && result.Success {
		return o.completeDelivery(ctx, purchase, result.TxHash, result.EngineResult, result.LedgerIndex)
	}

	return o.failDelivery(ctx, purchase, result, submitErr)
}

func (o *Orchestrator) deliveredResult(purchase *models.Purchase) *models.DeliveryResult {
	if purchase.AssetTxHash == "" {
		return nil
	}
	switch purchase.Status {
	case models.PurchaseStatusCompleted, models.PurchaseStatusMPTSent:
		return &models.DeliveryResult{
			Success:          purchase.Status == models.PurchaseStatusCompleted,
			PurchaseID:       purchase.ID,
			Status:           purchase.Status,
			AssetTxHash:      purchase.AssetTxHash,
			AlreadyDelivered: true,
		}
	}
	return nil
}

func (o *Orchestrator) completeDelivery(ctx context.Context, purchase *models.Purchase, txHash, engineResult string, ledgerIndex int64) (*models.DeliveryResult, error) {
	from := purchase.Status
	if err := setStatus(purchase, models.PurchaseStatusCompleted); err != nil {
		return nil, err
	}
	purchase.AssetTxHash = txHash
	purchase.ActionRequired = nil
	purchase.LastError = ""

	// The row update and the validated leg must land together; a crash
	// between them would leave a completed purchase with no leg row.
	err := o.purchases.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.purchases.Update(txCtx, purchase); err != nil {
			return err
		}
		return o.ledgerTxs.Append(txCtx, &models.LedgerTx{
			PurchaseID:   purchase.ID,
			Leg:          models.LegAsset,
			TxHash:       txHash,
			Status:       models.LedgerTxStatusValidated,
			EngineResult: engineResult,
			LedgerIndex:  ledgerIndex,
		})
	})
	if err != nil {
		return nil, err
	}

	o.appendEvent(ctx, purchase.ID, "asset_delivered", from, purchase.Status, o.workerID)

	return &models.DeliveryResult{
		Success:     true,
		PurchaseID:  purchase.ID,
		Status:      purchase.Status,
		AssetTxHash: txHash,
	}, nil
}

func (o *Orchestrator) failDelivery(ctx context.Context, purchase *models.Purchase, result *submitter.Result, submitErr error) (*models.DeliveryResult, error) {
	if submitErr == nil {
		submitErr = utils.NewLedgerError(utils.ClassTerminal, "", "submission did not complete")
	}

	from := purchase.Status
	class := utils.ClassOf(submitErr)
	engineResult := ""
	txHash := ""
	if result != nil {
		engineResult = result.EngineResult
		txHash = result.TxHash
	}

	eventType := "delivery_failed"
	switch class {
	case utils.ClassValidationTimeout:
		// Ambiguous: the transfer may still land. Keep the hash and
		// park the purchase as sent-but-unvalidated.
		if err := setStatus(purchase, models.PurchaseStatusMPTSent); err != nil {
			return nil, err
		}
		purchase.AssetTxHash = txHash
		eventType = "delivery_pending_validation"
		o.appendLedgerTx(ctx, &models.LedgerTx{
			PurchaseID:   purchase.ID,
			Leg:          models.LegAsset,
			TxHash:       txHash,
			Status:       models.LedgerTxStatusSubmitted,
			EngineResult: engineResult,
		})

	case utils.ClassActionRequired:
		tag, known := o.rules.TagFor(engineResult)
		if !known {
			tag = "precondition_missing"
		}
		if err := setStatus(purchase, models.PurchaseStatusActionRequired); err != nil {
			return nil, err
		}
		purchase.ActionRequired = &tag
		eventType = "delivery_action_required"

	default:
		if err := setStatus(purchase, models.PurchaseStatusFailed); err != nil {
			return nil, err
		}
		o.appendLedgerTx(ctx, &models.LedgerTx{
			PurchaseID:   purchase.ID,
			Leg:          models.LegAsset,
			TxHash:       txHash,
			Status:       models.LedgerTxStatusFailed,
			EngineResult: engineResult,
			Error:        submitErr.Error(),
		})
	}

	purchase.LastError = submitErr.Error()
	if err := o.purchases.Update(ctx, purchase); err != nil {
		return nil, err
	}

	o.appendEvent(ctx, purchase.ID, eventType, from, purchase.Status, o.workerID)

	return &models.DeliveryResult{
		PurchaseID:     purchase.ID,
		Status:         purchase.Status,
		AssetTxHash:    purchase.AssetTxHash,
		ActionRequired: purchase.ActionRequired,
		Error:          submitErr.Error(),
	}, submitErr
}

func (o *Orchestrator) appendEvent(ctx context.Context, purchaseID, eventType string, from, to models.PurchaseStatus, triggeredBy string) {
	err := o.events.Append(ctx, &models.PurchaseEvent{
		PurchaseID:  purchaseID,
		EventType:   eventType,
		FromState:   from,
		ToState:     to,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		o.logger.Error(ctx, "failed to append purchase event", map[string]interface{}{
			"purchase_id": purchaseID,
			"event_type":  eventType,
			"error":       err.Error(),
		})
	}
}

func (o *Orchestrator) appendLedgerTx(ctx context.Context, tx *models.LedgerTx) {
	if err := o.ledgerTxs.Append(ctx, tx); err != nil {
		o.logger.Error(ctx, "failed to append ledger tx", map[string]interface{}{
			"purchase_id": tx.PurchaseID,
			"leg":         tx.Leg,
			"error":       err.Error(),
		})
	}
}
