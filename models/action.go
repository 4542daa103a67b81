package models

import (
	"time"
)

// ActionRecord is one row of the idempotency ledger. For any
// idempotency key at most one record exists, and it is the single
// source of truth for whether the logical action already happened.
type ActionRecord struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"uniqueIndex;not null"`
	ActionType     string    `json:"action_type" gorm:"not null"`
	Actor          string    `json:"actor"`
	Target         string    `json:"target"`
	Network        string    `json:"network"`
	TxHash         string    `json:"tx_hash"`
	EngineResult   string    `json:"engine_result"`
	Validated      bool      `json:"validated"`
	Metadata       JSON      `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
