package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/payments"
	"github.com/malwarebo/mintbridge/submitter"
	"github.com/malwarebo/mintbridge/utils"
)

type memoryCompensations struct {
	mu         sync.Mutex
	byID       map[string]*models.Compensation
	byPurchase map[string]string
	seq        int
}

func newMemoryCompensations() *memoryCompensations {
	return &memoryCompensations{
		byID:       make(map[string]*models.Compensation),
		byPurchase: make(map[string]string),
	}
}

func (m *memoryCompensations) Create(ctx context.Context, comp *models.Compensation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byPurchase[comp.PurchaseID]; exists {
		return utils.ErrCompensationExists
	}
	m.seq++
	if comp.ID == "" {
		comp.ID = fmt.Sprintf("comp-%d", m.seq)
	}
	stored := *comp
	m.byID[comp.ID] = &stored
	m.byPurchase[comp.PurchaseID] = comp.ID
	return nil
}

func (m *memoryCompensations) GetByID(ctx context.Context, id string) (*models.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	comp, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("compensation %s not found", id)
	}
	cp := *comp
	return &cp, nil
}

func (m *memoryCompensations) GetByPurchase(ctx context.Context, purchaseID string) (*models.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPurchase[purchaseID]
	if !ok {
		return nil, nil
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memoryCompensations) Update(ctx context.Context, comp *models.Compensation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[comp.ID]; !ok {
		return fmt.Errorf("compensation %s not found", comp.ID)
	}
	stored := *comp
	m.byID[comp.ID] = &stored
	return nil
}

func (m *memoryCompensations) ListByStatus(ctx context.Context, status models.CompensationStatus) ([]*models.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Compensation
	for _, comp := range m.byID {
		if comp.Status == status {
			cp := *comp
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubRefunder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *stubRefunder) Name() string { return "stripe" }

func (s *stubRefunder) Verify(ctx context.Context, reference string) (*payments.Verification, error) {
	return &payments.Verification{Reference: reference, Paid: true}, nil
}

func (s *stubRefunder) Refund(ctx context.Context, req *payments.RefundRequest) (*payments.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.fail {
		return nil, errors.New("rail unavailable")
	}
	return &payments.RefundResult{RefundID: "re_123", Status: "succeeded"}, nil
}

func (s *stubRefunder) refundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func compensationFixture(t *testing.T, engine Submitter, refunder *stubRefunder) (*CompensationService, *Orchestrator, *memoryPurchases, *memoryEvents, *models.Purchase) {
	t.Helper()

	purchases := newMemoryPurchases()
	events := &memoryEvents{}
	ledgerTxs := &memoryLedgerTxs{}
	comps := newMemoryCompensations()

	orchestrator := CreateOrchestrator(purchases, events, ledgerTxs, engine, stubBuilder{}, nil, nil,
		OrchestratorConfig{LeaseTTL: time.Second, WorkerID: "worker-test"},
		utils.NewLogger("test"))

	refunders := map[string]payments.Provider{}
	if refunder != nil {
		refunders[refunder.Name()] = refunder
	}
	service := CreateCompensationService(comps, purchases, events, refunders, orchestrator, utils.NewLogger("test"))

	purchase := createTestPurchase(t, orchestrator)
	if err := orchestrator.ConfirmFunds(context.Background(), purchase.ID, "FUNDSHASH"); err != nil {
		t.Fatal(err)
	}
	return service, orchestrator, purchases, events, purchase
}

func failDeliveryFixture(t *testing.T, refunder *stubRefunder) (*CompensationService, *memoryPurchases, *models.Purchase) {
	t.Helper()

	engine := &stubSubmitter{
		result: &submitter.Result{EngineResult: "tecUNFUNDED_PAYMENT"},
		err:    utils.NewLedgerError(utils.ClassTerminal, "tecUNFUNDED_PAYMENT", "insufficient funds"),
	}
	service, orchestrator, purchases, _, purchase := compensationFixture(t, engine, refunder)

	if _, err := orchestrator.ProcessAssetDelivery(context.Background(), purchase.ID); err == nil {
		t.Fatal("delivery should have failed")
	}
	return service, purchases, purchase
}

func TestCompensationRefundFlow(t *testing.T) {
	refunder := &stubRefunder{}
	service, purchases, purchase := failDeliveryFixture(t, refunder)

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
		Reason:     "delivery failed terminally",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if comp.Status != models.CompensationStatusPending {
		t.Errorf("status = %s", comp.Status)
	}

	stored, _ := purchases.GetByID(context.Background(), purchase.ID)
	if stored.Status != models.PurchaseStatusCompensationRequired {
		t.Errorf("purchase status = %s, want compensation_required", stored.Status)
	}

	if _, err := service.Execute(context.Background(), comp.ID); !errors.Is(err, utils.ErrNotApproved) {
		t.Errorf("execute before approval should fail, got %v", err)
	}

	if _, err := service.Approve(context.Background(), comp.ID, "ops@example.com"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	executed, err := service.Execute(context.Background(), comp.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != models.CompensationStatusExecuted {
		t.Errorf("status = %s", executed.Status)
	}
	if executed.ResultTxHash != "re_123" {
		t.Errorf("result ref = %q", executed.ResultTxHash)
	}

	refunded, _ := purchases.GetByID(context.Background(), purchase.ID)
	if refunded.Status != models.PurchaseStatusRefunded {
		t.Errorf("purchase status = %s, want refunded", refunded.Status)
	}

	// Re-executing is a no-op.
	if _, err := service.Execute(context.Background(), comp.ID); err != nil {
		t.Errorf("re-execute: %v", err)
	}
	if refunder.refundCount() != 1 {
		t.Errorf("refund calls = %d, want 1", refunder.refundCount())
	}
}

func TestCompensationRejectsHealthyPurchase(t *testing.T) {
	engine := &stubSubmitter{result: &submitter.Result{
		Success: true, TxHash: "ASSETHASH", Validated: true, EngineResult: "tesSUCCESS",
	}}
	service, orchestrator, _, _, purchase := compensationFixture(t, engine, nil)

	if _, err := orchestrator.ProcessAssetDelivery(context.Background(), purchase.ID); err != nil {
		t.Fatal(err)
	}

	_, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
	})
	if err == nil {
		t.Error("completed purchase must not be compensatable")
	}
}

func TestCompensationSinglePerPurchase(t *testing.T) {
	service, _, purchase := failDeliveryFixture(t, &stubRefunder{})

	if _, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeManual,
	})
	if !errors.Is(err, utils.ErrCompensationExists) {
		t.Errorf("second compensation should conflict, got %v", err)
	}
}

func TestCompensationRefundFailureMarksFailed(t *testing.T) {
	refunder := &stubRefunder{fail: true}
	service, purchases, purchase := failDeliveryFixture(t, refunder)

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.Approve(context.Background(), comp.ID, "ops"); err != nil {
		t.Fatal(err)
	}

	if _, err := service.Execute(context.Background(), comp.ID); err == nil {
		t.Fatal("expected refund failure to surface")
	}

	stored, _ := service.comps.GetByID(context.Background(), comp.ID)
	if stored.Status != models.CompensationStatusFailed {
		t.Errorf("compensation status = %s, want failed", stored.Status)
	}

	p, _ := purchases.GetByID(context.Background(), purchase.ID)
	if p.Status == models.PurchaseStatusRefunded {
		t.Error("purchase must not claim refunded after a failed refund")
	}
}

func TestCompensationManualExecution(t *testing.T) {
	service, _, purchase := failDeliveryFixture(t, nil)

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeManual,
		Reason:     "operator will settle out of band",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.Approve(context.Background(), comp.ID, "ops"); err != nil {
		t.Fatal(err)
	}

	executed, err := service.Execute(context.Background(), comp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if executed.Status != models.CompensationStatusExecuted {
		t.Errorf("status = %s", executed.Status)
	}
}

func TestCompensationRetryRedeliversAsset(t *testing.T) {
	engine := &stubSubmitter{
		result: &submitter.Result{EngineResult: "tecNO_LINE"},
		err:    utils.NewLedgerError(utils.ClassActionRequired, "tecNO_LINE", "no trustline"),
	}
	service, orchestrator, purchases, _, purchase := compensationFixture(t, engine, nil)

	if _, err := orchestrator.ProcessAssetDelivery(context.Background(), purchase.ID); err == nil {
		t.Fatal("delivery should have parked as action_required")
	}

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRetry,
		Reason:     "buyer added the trustline",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.Approve(context.Background(), comp.ID, "ops"); err != nil {
		t.Fatal(err)
	}

	engine.mu.Lock()
	engine.result = &submitter.Result{Success: true, TxHash: "ASSETHASH", Validated: true, EngineResult: "tesSUCCESS"}
	engine.err = nil
	engine.mu.Unlock()

	executed, err := service.Execute(context.Background(), comp.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != models.CompensationStatusExecuted {
		t.Errorf("status = %s", executed.Status)
	}
	if executed.ResultTxHash != "ASSETHASH" {
		t.Errorf("result hash = %q", executed.ResultTxHash)
	}

	stored, _ := purchases.GetByID(context.Background(), purchase.ID)
	if stored.Status != models.PurchaseStatusCompleted {
		t.Errorf("purchase status = %s, want completed", stored.Status)
	}
}

func TestCompensationListPending(t *testing.T) {
	service, _, purchase := failDeliveryFixture(t, nil)

	if _, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeManual,
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := service.ListPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

// parkedDeliveryFixture drives a purchase into mpt_sent by timing out
// validation on the asset leg.
func parkedDeliveryFixture(t *testing.T, refunder *stubRefunder) (*CompensationService, *memoryPurchases, *models.Purchase) {
	t.Helper()

	engine := &stubSubmitter{
		result: &submitter.Result{TxHash: "PARKEDHASH", EngineResult: "tesSUCCESS"},
		err:    utils.NewLedgerError(utils.ClassValidationTimeout, "", "validation window elapsed"),
	}
	service, orchestrator, purchases, _, purchase := compensationFixture(t, engine, refunder)

	if _, err := orchestrator.ProcessAssetDelivery(context.Background(), purchase.ID); err == nil {
		t.Fatal("delivery should have timed out")
	}
	stored, _ := purchases.GetByID(context.Background(), purchase.ID)
	if stored.Status != models.PurchaseStatusMPTSent {
		t.Fatalf("purchase status = %s, want mpt_sent", stored.Status)
	}
	return service, purchases, purchase
}

func TestCompensationRefundFromParkedDelivery(t *testing.T) {
	refunder := &stubRefunder{}
	service, purchases, purchase := parkedDeliveryFixture(t, refunder)

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
		Reason:     "validation never confirmed",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Approve(context.Background(), comp.ID, "ops@example.com"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := service.Execute(context.Background(), comp.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stored, _ := purchases.GetByID(context.Background(), purchase.ID)
	if stored.Status != models.PurchaseStatusRefunded {
		t.Errorf("purchase status = %s, want refunded", stored.Status)
	}
	if refunder.refundCount() != 1 {
		t.Errorf("refund calls = %d, want 1", refunder.refundCount())
	}
}

func TestCompensationRefundRefusedAfterCompletion(t *testing.T) {
	refunder := &stubRefunder{}
	service, purchases, purchase := parkedDeliveryFixture(t, refunder)

	comp, err := service.Create(context.Background(), &models.CreateCompensationRequest{
		PurchaseID: purchase.ID,
		Type:       models.CompensationTypeRefund,
		Reason:     "validation never confirmed",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Approve(context.Background(), comp.ID, "ops@example.com"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// The parked transfer validates after approval; the purchase
	// completes before the refund runs.
	stored, _ := purchases.GetByID(context.Background(), purchase.ID)
	stored.Status = models.PurchaseStatusCompleted
	if err := purchases.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	if _, err := service.Execute(context.Background(), comp.ID); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Errorf("execute = %v, want ErrInvalidTransition", err)
	}
	if refunder.refundCount() != 0 {
		t.Errorf("refund calls = %d, want 0", refunder.refundCount())
	}

	after, _ := purchases.GetByID(context.Background(), purchase.ID)
	if after.Status != models.PurchaseStatusCompleted {
		t.Errorf("purchase status = %s, want completed", after.Status)
	}
}
