package services

import (
	"context"
	"fmt"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/submitter"
	"github.com/malwarebo/mintbridge/utils"
)

// SagaStep is one ordered on-chain operation. Inverse, when present,
// is the signed compensating transaction that undoes the step.
type SagaStep struct {
	Name     string
	SignedTx string
	Inverse  string
}

type SagaResult struct {
	Success     bool   `json:"success"`
	HashA       string `json:"hash_a,omitempty"`
	HashB       string `json:"hash_b,omitempty"`
	Compensated bool   `json:"compensated"`
	Error       string `json:"error,omitempty"`
	Replayed    bool   `json:"replayed,omitempty"`
}

// Saga composes two ordered ledger steps (lock the source asset, then
// issue a derivative against it) into one idempotent unit. If step B
// fails after step A committed, step A's inverse is submitted
// best-effort so the ledger never stays half-committed from the
// business's point of view.
type Saga struct {
	engine  Submitter
	actions submitter.ActionLedger
	logger  *utils.Logger
}

func CreateSaga(engine Submitter, actions submitter.ActionLedger, logger *utils.Logger) *Saga {
	return &Saga{engine: engine, actions: actions, logger: logger}
}

// RunTwoStep executes stepA then stepB under the given idempotency
// key. Replaying a key returns the recorded verdict without touching
// the ledger; neither step is ever re-executed.
func (s *Saga) RunTwoStep(ctx context.Context, stepA, stepB SagaStep, idempotencyKey string) (*SagaResult, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("saga idempotency key is required")
	}

	record, err := s.actions.Find(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return replayedResult(record), nil
	}

	resultA, errA := s.engine.SubmitAndWait(ctx, stepA.SignedTx, submitter.Options{
		IdempotencyKey: idempotencyKey + "_A",
		ActionType:     "saga_step",
		Target:         stepA.Name,
	})
	if errA != nil || !resultA.Success {
		// Nothing committed; no compensation needed and the saga key
		// stays unrecorded so a corrected attempt may reuse it.
		if errA == nil {
			errA = utils.NewLedgerError(utils.ClassTerminal, resultA.EngineResult, "saga step A did not complete")
		}
		return &SagaResult{Error: errA.Error()}, errA
	}

	resultB, errB := s.engine.SubmitAndWait(ctx, stepB.SignedTx, submitter.Options{
		IdempotencyKey: idempotencyKey + "_B",
		ActionType:     "saga_step",
		Target:         stepB.Name,
	})
	if errB == nil && resultB.Success {
		result := &SagaResult{
			Success: true,
			HashA:   resultA.TxHash,
			HashB:   resultB.TxHash,
		}
		s.record(ctx, idempotencyKey, result)
		return result, nil
	}
	if errB == nil {
		errB = utils.NewLedgerError(utils.ClassTerminal, resultB.EngineResult, "saga step B did not complete")
	}

	result := &SagaResult{
		HashA: resultA.TxHash,
		Error: errB.Error(),
	}

	if stepA.Inverse != "" {
		compResult, compErr := s.engine.SubmitAndWait(ctx, stepA.Inverse, submitter.Options{
			IdempotencyKey: idempotencyKey + "_COMP",
			ActionType:     "saga_compensation",
			Target:         stepA.Name,
		})
		if compErr == nil && compResult.Success {
			result.Compensated = true
		} else {
			// The saga's verdict stays the same; the stranded step A is
			// an operator problem, not a different outcome.
			s.logger.Error(ctx, "saga compensation failed", map[string]interface{}{
				"idempotency_key": idempotencyKey,
				"step":            stepA.Name,
				"hash_a":          resultA.TxHash,
				"error":           errString(compErr),
			})
		}
	}

	s.record(ctx, idempotencyKey, result)
	return result, errB
}

func (s *Saga) record(ctx context.Context, key string, result *SagaResult) {
	record := &models.ActionRecord{
		IdempotencyKey: key,
		ActionType:     "saga",
		TxHash:         result.HashB,
		Validated:      result.Success,
		Metadata: models.JSON{
			"success":     result.Success,
			"hash_a":      result.HashA,
			"hash_b":      result.HashB,
			"compensated": result.Compensated,
			"error":       result.Error,
		},
	}
	if err := s.actions.Record(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Error(ctx, "failed to record saga outcome", map[string]interface{}{
			"idempotency_key": key,
			"error":           err.Error(),
		})
	}
}

func replayedResult(record *models.ActionRecord) *SagaResult {
	result := &SagaResult{Replayed: true}
	if record.Metadata != nil {
		result.Success, _ = record.Metadata["success"].(bool)
		result.HashA, _ = record.Metadata["hash_a"].(string)
		result.HashB, _ = record.Metadata["hash_b"].(string)
		result.Compensated, _ = record.Metadata["compensated"].(bool)
		result.Error, _ = record.Metadata["error"].(string)
	}
	if result.HashB == "" {
		result.HashB = record.TxHash
	}
	return result
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
