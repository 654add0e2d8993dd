package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ESimStatusInactive = "INACTIVE"
	ESimStatusActive   = "ACTIVE"
	ESimStatusExpired  = "EXPIRED"
)

// ESim is a provisioned connectivity resource owned by a user.
type ESim struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	ExternalID     string    `gorm:"uniqueIndex;not null" json:"telnyx_sim_id"`
	ICCID          string    `gorm:"index" json:"iccid"`
	Status         string    `gorm:"size:16;not null;default:'INACTIVE'" json:"status"`
	ActivationCode string    `json:"activation_code"`
	SMDPAddress    string    `json:"smdp_address"`
	QRCodeURL      string    `json:"qr_code_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	OrderStatusPending   = "PENDING"
	OrderStatusActivated = "ACTIVATED"
	OrderStatusFailed    = "FAILED"
)

// Order stages track the purchase state machine.
const (
	StageInitiated             = "INITIATED"
	StagePaymentVerified       = "PAYMENT_VERIFIED"
	StageExternallyProvisioned = "EXTERNALLY_PROVISIONED"
	StageRecorded              = "RECORDED"
	StageActivated             = "ACTIVATED"
	StageCompensatedFailure    = "COMPENSATED_FAILURE"
)

// EsimOrder links one payment reference to one provisioning attempt.
// Reference is unique, which makes the insert the serialization point for
// concurrent deliveries of the same payment.
type EsimOrder struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	PlanID        string          `gorm:"size:64;not null" json:"plan_id"`
	Reference     string          `gorm:"uniqueIndex;not null" json:"reference"`
	PaymentMethod string          `gorm:"size:16;not null" json:"payment_method"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	PointsUsed    int64           `gorm:"not null;default:0" json:"points_used"`
	Status        string          `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	Stage         string          `gorm:"size:32;not null;default:'INITIATED'" json:"stage"`
	ExternalID    string          `gorm:"index" json:"external_id,omitempty"`
	ESimID        *uint           `json:"esim_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
