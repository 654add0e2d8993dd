package models

import "time"

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is an SMS sent by a user or received on one of their numbers.
// UserID is nil for inbound messages to a number nobody owns.
type Message struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id,omitempty"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Text       string    `json:"text"`
	Direction  string    `gorm:"size:16" json:"direction"`
	Status     string    `gorm:"size:32" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Phone number statuses
const (
	NumberStatusPending = "PENDING"
	NumberStatusActive  = "ACTIVE"
	NumberStatusFailed  = "FAILED"
)

// PhoneNumber is a carrier number held by a user. The unique number is
// claimed before the carrier order is placed; a FAILED row may be reclaimed.
type PhoneNumber struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	PhoneNumber string    `gorm:"size:20;uniqueIndex;not null" json:"phone_number"`
	OrderID     string    `gorm:"size:64;index" json:"order_id,omitempty"`
	Status      string    `gorm:"size:16;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Call tracks a voice call keyed by the carrier's call control id.
type Call struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	CallControlID string     `gorm:"uniqueIndex;not null" json:"call_control_id"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Direction     string     `gorm:"size:16" json:"direction"`
	Status        string     `gorm:"size:32" json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	HangupCause   string     `json:"hangup_cause,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
