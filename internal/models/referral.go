package models

import "time"

const (
	ReferralStatusPending   = "PENDING"
	ReferralStatusCompleted = "COMPLETED"
	ReferralStatusExpired   = "EXPIRED"
)

// Referral is one referrer/referee pairing attempt. The code moves from
// PENDING to COMPLETED at most once.
type Referral struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	ReferrerID    uint       `gorm:"index;not null" json:"referrer_id"`
	ReferralCode  string     `gorm:"uniqueIndex;size:32;not null" json:"referral_code"`
	RefereeEmail  string     `gorm:"index" json:"referee_email,omitempty"`
	RefereeID     *uint      `json:"referee_id,omitempty"`
	Status        string     `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	PointsAwarded int64      `gorm:"not null;default:0" json:"points_awarded"`
	Commission    int        `gorm:"not null;default:0" json:"commission"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired reports whether the referral can no longer be claimed at now.
func (r *Referral) Expired(now time.Time) bool {
	if r.Status == ReferralStatusExpired {
		return true
	}
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
