package payments

import (
	"testing"

	refund "github.com/xendit/xendit-go/v6/refund"
)

func TestXenditRefundResultAccepted(t *testing.T) {
	ref := refund.NewRefund()
	ref.SetId("rfd_123")

	result := xenditRefundResult(ref)
	if result.RefundID != "rfd_123" {
		t.Errorf("refund id = %q, want rfd_123", result.RefundID)
	}
	if result.Status != "PENDING" {
		t.Errorf("status = %q, want PENDING", result.Status)
	}
}

func TestXenditRefundResultFailureCode(t *testing.T) {
	ref := refund.NewRefund()
	ref.SetId("rfd_456")
	ref.SetFailureCode("INSUFFICIENT_BALANCE")

	result := xenditRefundResult(ref)
	if result.Status != "FAILED" {
		t.Errorf("status = %q, want FAILED", result.Status)
	}
}
