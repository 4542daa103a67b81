package models

import (
	"time"
)

type CompensationType string
type CompensationStatus string

const (
	CompensationTypeRefund CompensationType = "refund"
	CompensationTypeRetry  CompensationType = "retry"
	CompensationTypeManual CompensationType = "manual"

	CompensationStatusPending  CompensationStatus = "pending"
	CompensationStatusApproved CompensationStatus = "approved"
	CompensationStatusExecuted CompensationStatus = "executed"
	CompensationStatusFailed   CompensationStatus = "failed"
)

type Compensation struct {
	ID           string             `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	PurchaseID   string             `json:"purchase_id" gorm:"uniqueIndex;not null"`
	Type         CompensationType   `json:"type" gorm:"not null"`
	Status       CompensationStatus `json:"status" gorm:"not null;default:'pending'"`
	Reason       string             `json:"reason"`
	ApprovedBy   string             `json:"approved_by"`
	ResultTxHash string             `json:"result_tx_hash"`
	Metadata     JSON               `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

type CreateCompensationRequest struct {
	PurchaseID string           `json:"purchase_id"`
	Type       CompensationType `json:"type"`
	Reason     string           `json:"reason"`
}
