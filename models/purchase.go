package models

import (
	"time"
)

type PurchaseStatus string

const (
	PurchaseStatusPendingPayment       PurchaseStatus = "pending_payment"
	PurchaseStatusFundsConfirmed       PurchaseStatus = "funds_confirmed"
	PurchaseStatusMPTSent              PurchaseStatus = "mpt_sent"
	PurchaseStatusCompleted            PurchaseStatus = "completed"
	PurchaseStatusActionRequired       PurchaseStatus = "action_required"
	PurchaseStatusFailed               PurchaseStatus = "failed"
	PurchaseStatusCompensationRequired PurchaseStatus = "compensation_required"
	PurchaseStatusRefunded             PurchaseStatus = "refunded"
)

// purchaseTransitions is the closed transition graph. A status never
// moves to a successor that is not listed here.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPendingPayment:       {PurchaseStatusFundsConfirmed},
	PurchaseStatusFundsConfirmed:       {PurchaseStatusMPTSent, PurchaseStatusCompleted, PurchaseStatusActionRequired, PurchaseStatusFailed},
	PurchaseStatusMPTSent:              {PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusCompensationRequired, PurchaseStatusRefunded},
	PurchaseStatusActionRequired:       {PurchaseStatusMPTSent, PurchaseStatusCompleted, PurchaseStatusActionRequired, PurchaseStatusFailed, PurchaseStatusCompensationRequired, PurchaseStatusRefunded},
	PurchaseStatusFailed:               {PurchaseStatusCompensationRequired, PurchaseStatusRefunded},
	PurchaseStatusCompensationRequired: {PurchaseStatusRefunded, PurchaseStatusCompleted},
}

func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, allowed := range purchaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PurchaseStatus) Terminal() bool {
	switch s {
	case PurchaseStatusCompleted, PurchaseStatusRefunded:
		return true
	}
	return false
}

type Purchase struct {
	ID             string         `json:"id" gorm:"primaryKey;type:uuid"`
	ExternalKey    string         `json:"external_key" gorm:"uniqueIndex;not null"`
	Buyer          string         `json:"buyer" gorm:"not null;index"`
	AssetCode      string         `json:"asset_code" gorm:"not null"`
	AssetIssuer    string         `json:"asset_issuer"`
	Quantity       int64          `json:"quantity" gorm:"not null"`
	PayCurrency    string         `json:"pay_currency" gorm:"not null"`
	PayAmount      int64          `json:"pay_amount" gorm:"not null"`
	PayProvider    string         `json:"pay_provider"`
	PayReference   string         `json:"pay_reference"`
	Status         PurchaseStatus `json:"status" gorm:"not null;default:'pending_payment';index"`
	FundsTxHash    string         `json:"funds_tx_hash"`
	AssetTxHash    string         `json:"asset_tx_hash"`
	RetryCount     int            `json:"retry_count" gorm:"default:0"`
	LastError      string         `json:"last_error"`
	ActionRequired *string        `json:"action_required"`
	LockedAt       *time.Time     `json:"locked_at"`
	LockedBy       string         `json:"locked_by"`
	Metadata       JSON           `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

type PurchaseEvent struct {
	ID          string         `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	PurchaseID  string         `json:"purchase_id" gorm:"not null;index"`
	EventType   string         `json:"event_type" gorm:"not null"`
	FromState   PurchaseStatus `json:"from_state"`
	ToState     PurchaseStatus `json:"to_state"`
	TriggeredBy string         `json:"triggered_by"`
	Metadata    JSON           `json:"metadata" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

type CreatePurchaseRequest struct {
	ExternalKey  string `json:"external_key"`
	Buyer        string `json:"buyer"`
	AssetCode    string `json:"asset_code"`
	AssetIssuer  string `json:"asset_issuer,omitempty"`
	Quantity     int64  `json:"quantity"`
	PayCurrency  string `json:"pay_currency"`
	PayAmount    int64  `json:"pay_amount"`
	PayProvider  string `json:"pay_provider,omitempty"`
	PayReference string `json:"pay_reference,omitempty"`
	FundsTxHash  string `json:"funds_tx_hash,omitempty"`
	Metadata     JSON   `json:"metadata,omitempty"`
}

type ConfirmFundsRequest struct {
	FundsTxHash  string `json:"funds_tx_hash"`
	PayReference string `json:"pay_reference,omitempty"`
}

type DeliveryResult struct {
	Success          bool           `json:"success"`
	PurchaseID       string         `json:"purchase_id"`
	Status           PurchaseStatus `json:"status"`
	AssetTxHash      string         `json:"asset_tx_hash,omitempty"`
	AlreadyDelivered bool           `json:"already_delivered,omitempty"`
	ActionRequired   *string        `json:"action_required,omitempty"`
	Error            string         `json:"error,omitempty"`
}
