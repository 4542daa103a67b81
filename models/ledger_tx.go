package models

import (
	"time"
)

type LedgerTxStatus string

const (
	LedgerTxStatusSubmitted LedgerTxStatus = "submitted"
	LedgerTxStatusValidated LedgerTxStatus = "validated"
	LedgerTxStatusFailed    LedgerTxStatus = "failed"
)

const (
	LegPayment = 1
	LegAsset   = 2
)

// LedgerTx is one attempted leg of a purchase. Rows are append-only;
// a validated leg is never overwritten.
type LedgerTx struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	PurchaseID   string         `json:"purchase_id" gorm:"not null;index"`
	Leg          int            `json:"leg" gorm:"not null"`
	TxHash       string         `json:"tx_hash" gorm:"index"`
	Status       LedgerTxStatus `json:"status" gorm:"not null"`
	EngineResult string         `json:"engine_result"`
	LedgerIndex  int64          `json:"ledger_index"`
	Error        string         `json:"error"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
}
