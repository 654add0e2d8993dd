package models

import "time"

// Points transaction types
const (
	PointsTypeReferral   = "REFERRAL"
	PointsTypeRedeem     = "REDEEM"
	PointsTypeBonus      = "BONUS"
	PointsTypePurchase   = "PURCHASE"
	PointsTypeAdjustment = "ADJUSTMENT"
)

// UserPoints keeps TotalPoints == AvailablePoints + RedeemedPoints.
type UserPoints struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalPoints     int64     `gorm:"not null;default:0;check:total_points >= 0" json:"total_points"`
	AvailablePoints int64     `gorm:"not null;default:0;check:available_points >= 0" json:"available_points"`
	RedeemedPoints  int64     `gorm:"not null;default:0;check:redeemed_points >= 0" json:"redeemed_points"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PointsTransaction is the append-only audit row for every points mutation.
// Amount is signed: credits are positive, redemptions negative.
type PointsTransaction struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Type        string    `gorm:"size:16;not null" json:"type"`
	Description string    `json:"description"`
	ReferralID  *uint     `json:"referral_id,omitempty"`
	Reference   string    `gorm:"index" json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
