package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/submitter"
	"github.com/malwarebo/mintbridge/utils"
)

type sagaReply struct {
	result *submitter.Result
	err    error
}

// keyedSubmitter scripts replies by idempotency-key suffix and records
// the order of submissions.
type keyedSubmitter struct {
	mu      sync.Mutex
	replies map[string]sagaReply
	order   []string
}

func newKeyedSubmitter() *keyedSubmitter {
	return &keyedSubmitter{replies: make(map[string]sagaReply)}
}

func (s *keyedSubmitter) script(suffix string, reply sagaReply) {
	s.replies[suffix] = reply
}

func (s *keyedSubmitter) SubmitAndWait(ctx context.Context, signedTx string, opts submitter.Options) (*submitter.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for suffix, reply := range s.replies {
		if strings.HasSuffix(opts.IdempotencyKey, suffix) {
			s.order = append(s.order, suffix)
			return reply.result, reply.err
		}
	}
	return nil, utils.NewLedgerError(utils.ClassTerminal, "", "no scripted reply for "+opts.IdempotencyKey)
}

func (s *keyedSubmitter) submissions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

type sagaActions struct {
	mu      sync.Mutex
	records map[string]*models.ActionRecord
}

func newSagaActions() *sagaActions {
	return &sagaActions{records: make(map[string]*models.ActionRecord)}
}

func (m *sagaActions) Find(ctx context.Context, key string) (*models.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key], nil
}

func (m *sagaActions) Record(ctx context.Context, record *models.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.IdempotencyKey]; !exists {
		m.records[record.IdempotencyKey] = record
	}
	return nil
}

func sagaSteps() (SagaStep, SagaStep) {
	lock := SagaStep{
		Name:     "lock_source_asset",
		SignedTx: "blob-lock",
		Inverse:  "blob-unlock",
	}
	issue := SagaStep{
		Name:     "issue_derivative",
		SignedTx: "blob-issue",
	}
	return lock, issue
}

func TestSagaBothStepsSucceed(t *testing.T) {
	engine := newKeyedSubmitter()
	engine.script("_A", sagaReply{result: &submitter.Result{Success: true, TxHash: "HASHA", Validated: true}})
	engine.script("_B", sagaReply{result: &submitter.Result{Success: true, TxHash: "HASHB", Validated: true}})

	actions := newSagaActions()
	saga := CreateSaga(engine, actions, utils.NewLogger("test"))

	lock, issue := sagaSteps()
	result, err := saga.RunTwoStep(context.Background(), lock, issue, "saga-1")
	if err != nil {
		t.Fatalf("saga: %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
	if result.HashA != "HASHA" || result.HashB != "HASHB" {
		t.Errorf("hashes = %q, %q", result.HashA, result.HashB)
	}
	if result.Compensated {
		t.Error("nothing to compensate on success")
	}

	record, _ := actions.Find(context.Background(), "saga-1")
	if record == nil {
		t.Fatal("expected a recorded verdict")
	}
	if success, _ := record.Metadata["success"].(bool); !success {
		t.Errorf("recorded verdict = %+v", record.Metadata)
	}
}

func TestSagaStepBFailureCompensatesStepA(t *testing.T) {
	engine := newKeyedSubmitter()
	engine.script("_A", sagaReply{result: &submitter.Result{Success: true, TxHash: "HASHA", Validated: true}})
	engine.script("_B", sagaReply{
		result: &submitter.Result{EngineResult: "tecUNFUNDED_PAYMENT"},
		err:    utils.NewLedgerError(utils.ClassTerminal, "tecUNFUNDED_PAYMENT", "insufficient funds"),
	})
	engine.script("_COMP", sagaReply{result: &submitter.Result{Success: true, TxHash: "HASHC", Validated: true}})

	actions := newSagaActions()
	saga := CreateSaga(engine, actions, utils.NewLogger("test"))

	lock, issue := sagaSteps()
	result, err := saga.RunTwoStep(context.Background(), lock, issue, "saga-2")
	if err == nil {
		t.Fatal("expected the step B error to surface")
	}
	if result.Success {
		t.Error("saga must not report success")
	}
	if !result.Compensated {
		t.Error("step A should have been compensated")
	}
	if result.HashA != "HASHA" {
		t.Errorf("hash A = %q", result.HashA)
	}

	order := engine.submissions()
	want := []string{"_A", "_B", "_COMP"}
	if len(order) != len(want) {
		t.Fatalf("submissions = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("submission[%d] = %s, want %s", i, order[i], want[i])
		}
	}

	record, _ := actions.Find(context.Background(), "saga-2")
	if record == nil {
		t.Fatal("expected a recorded verdict")
	}
	if compensated, _ := record.Metadata["compensated"].(bool); !compensated {
		t.Errorf("recorded verdict = %+v", record.Metadata)
	}
}

func TestSagaCompensationFailureKeepsVerdict(t *testing.T) {
	engine := newKeyedSubmitter()
	engine.script("_A", sagaReply{result: &submitter.Result{Success: true, TxHash: "HASHA", Validated: true}})
	engine.script("_B", sagaReply{
		result: &submitter.Result{},
		err:    utils.NewLedgerError(utils.ClassTerminal, "temMALFORMED", "malformed"),
	})
	engine.script("_COMP", sagaReply{
		result: &submitter.Result{},
		err:    utils.NewLedgerError(utils.ClassRetryable, "", "retry budget exhausted"),
	})

	actions := newSagaActions()
	saga := CreateSaga(engine, actions, utils.NewLogger("test"))

	lock, issue := sagaSteps()
	result, err := saga.RunTwoStep(context.Background(), lock, issue, "saga-3")
	if err == nil {
		t.Fatal("expected the step B error to surface")
	}
	if result.Compensated {
		t.Error("failed compensation must not claim compensated")
	}
	if result.HashA != "HASHA" {
		t.Errorf("the stranded hash must be kept for operators, got %q", result.HashA)
	}
}

func TestSagaStepAFailureLeavesNoRecord(t *testing.T) {
	engine := newKeyedSubmitter()
	engine.script("_A", sagaReply{
		result: &submitter.Result{},
		err:    utils.NewLedgerError(utils.ClassTerminal, "temMALFORMED", "malformed"),
	})

	actions := newSagaActions()
	saga := CreateSaga(engine, actions, utils.NewLogger("test"))

	lock, issue := sagaSteps()
	_, err := saga.RunTwoStep(context.Background(), lock, issue, "saga-4")
	if err == nil {
		t.Fatal("expected the step A error to surface")
	}

	if record, _ := actions.Find(context.Background(), "saga-4"); record != nil {
		t.Error("nothing committed; the saga key must stay free for a corrected attempt")
	}

	order := engine.submissions()
	if len(order) != 1 || order[0] != "_A" {
		t.Errorf("submissions = %v, want only step A", order)
	}
}

func TestSagaReplayReturnsStoredVerdict(t *testing.T) {
	engine := newKeyedSubmitter()
	actions := newSagaActions()
	actions.Record(context.Background(), &models.ActionRecord{
		IdempotencyKey: "saga-5",
		ActionType:     "saga",
		TxHash:         "HASHB",
		Validated:      true,
		Metadata: models.JSON{
			"success": true,
			"hash_a":  "HASHA",
			"hash_b":  "HASHB",
		},
	})

	saga := CreateSaga(engine, actions, utils.NewLogger("test"))
	lock, issue := sagaSteps()

	result, err := saga.RunTwoStep(context.Background(), lock, issue, "saga-5")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !result.Replayed || !result.Success {
		t.Errorf("result = %+v", result)
	}
	if result.HashA != "HASHA" || result.HashB != "HASHB" {
		t.Errorf("hashes = %q, %q", result.HashA, result.HashB)
	}
	if len(engine.submissions()) != 0 {
		t.Errorf("replay must not submit, got %v", engine.submissions())
	}
}

func TestSagaRequiresKey(t *testing.T) {
	saga := CreateSaga(newKeyedSubmitter(), newSagaActions(), utils.NewLogger("test"))
	lock, issue := sagaSteps()

	if _, err := saga.RunTwoStep(context.Background(), lock, issue, ""); err == nil {
		t.Error("empty idempotency key must be rejected")
	}
}
