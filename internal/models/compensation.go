package models

import "time"

const (
	CompensationActionDeactivate = "DEACTIVATE"

	CompensationStatusPending   = "PENDING"
	CompensationStatusDone      = "DONE"
	CompensationStatusAbandoned = "ABANDONED"
)

// Compensation is a persisted corrective action against the provisioning
// provider, retried until it succeeds or runs out of attempts.
type Compensation struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	OrderReference string    `gorm:"index;not null" json:"order_reference"`
	ExternalID     string    `gorm:"index;not null" json:"external_id"`
	Action         string    `gorm:"size:16;not null" json:"action"`
	Status         string    `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	Reason         string    `json:"reason"`
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	NextAttemptAt  time.Time `gorm:"index" json:"next_attempt_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
