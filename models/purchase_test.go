package models

import "testing"

func TestPurchaseStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to PurchaseStatus
	}{
		{PurchaseStatusPendingPayment, PurchaseStatusFundsConfirmed},
		{PurchaseStatusFundsConfirmed, PurchaseStatusCompleted},
		{PurchaseStatusFundsConfirmed, PurchaseStatusMPTSent},
		{PurchaseStatusFundsConfirmed, PurchaseStatusActionRequired},
		{PurchaseStatusFundsConfirmed, PurchaseStatusFailed},
		{PurchaseStatusMPTSent, PurchaseStatusCompleted},
		{PurchaseStatusMPTSent, PurchaseStatusFailed},
		{PurchaseStatusMPTSent, PurchaseStatusCompensationRequired},
		{PurchaseStatusMPTSent, PurchaseStatusRefunded},
		{PurchaseStatusActionRequired, PurchaseStatusCompleted},
		{PurchaseStatusActionRequired, PurchaseStatusFailed},
		{PurchaseStatusActionRequired, PurchaseStatusCompensationRequired},
		{PurchaseStatusActionRequired, PurchaseStatusRefunded},
		{PurchaseStatusFailed, PurchaseStatusCompensationRequired},
		{PurchaseStatusFailed, PurchaseStatusRefunded},
		{PurchaseStatusCompensationRequired, PurchaseStatusRefunded},
		{PurchaseStatusCompensationRequired, PurchaseStatusCompleted},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to PurchaseStatus
	}{
		{PurchaseStatusPendingPayment, PurchaseStatusCompleted},
		{PurchaseStatusCompleted, PurchaseStatusFailed},
		{PurchaseStatusCompleted, PurchaseStatusRefunded},
		{PurchaseStatusRefunded, PurchaseStatusPendingPayment},
		{PurchaseStatusFailed, PurchaseStatusCompleted},
		{PurchaseStatusCompleted, PurchaseStatusPendingPayment},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestPurchaseStatusTerminal(t *testing.T) {
	terminal := []PurchaseStatus{PurchaseStatusCompleted, PurchaseStatusRefunded}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	open := []PurchaseStatus{
		PurchaseStatusPendingPayment,
		PurchaseStatusFundsConfirmed,
		PurchaseStatusMPTSent,
		PurchaseStatusActionRequired,
		PurchaseStatusFailed,
		PurchaseStatusCompensationRequired,
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
