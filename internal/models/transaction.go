package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)

// Transaction statuses
const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

// Transaction is the append-only money audit row. Reference is the
// external payment reference and is unique when present; it is the
// idempotency key for funding and purchases.
type Transaction struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	Type        string          `gorm:"size:16;not null" json:"type"`
	Status      string          `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	Reference   *string         `gorm:"uniqueIndex" json:"reference,omitempty"`
	Provider    string          `gorm:"size:32" json:"provider,omitempty"`
	Description string          `json:"description"`
	Metadata    JSON            `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ref returns the reference or an empty string.
func (t *Transaction) Ref() string {
	if t.Reference == nil {
		return ""
	}
	return *t.Reference
}

// StringPtr is a small helper for optional string columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
