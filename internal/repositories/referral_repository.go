package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airswitch/internal/models"

	"gorm.io/gorm"
)

type ReferralRepository interface {
	Create(ctx context.Context, referral *models.Referral) error
	GetByCode(ctx context.Context, code string) (*models.Referral, error)

	// FindOpenCode returns the referrer's shareable (non-invite) PENDING code.
	FindOpenCode(ctx context.Context, referrerID uint) (*models.Referral, error)
	FindInvite(ctx context.Context, referrerID uint, email string) (*models.Referral, error)

	// Complete marks a PENDING referral COMPLETED. It reports false when the
	// referral was not PENDING, which makes it the single-completion gate.
	Complete(ctx context.Context, code string, refereeID uint, points int64, at time.Time) (bool, error)
	Expire(ctx context.Context, code string) (bool, error)

	ListByReferrer(ctx context.Context, referrerID uint, limit int) ([]models.Referral, error)
}

type referralRepository struct {
	db *gorm.DB
}

func (r *referralRepository) Create(ctx context.Context, referral *models.Referral) error {
	referral.RefereeEmail = strings.ToLower(strings.TrimSpace(referral.RefereeEmail))
	if err := r.db.WithContext(ctx).Create(referral).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (r *referralRepository) GetByCode(ctx context.Context, code string) (*models.Referral, error) {
	return r.first(ctx, r.db.Where("referral_code = ?", strings.ToUpper(strings.TrimSpace(code))))
}

func (r *referralRepository) FindOpenCode(ctx context.Context, referrerID uint) (*models.Referral, error) {
	return r.first(ctx, r.db.
		Where("referrer_id = ? AND status = ? AND (referee_email = '' OR referee_email IS NULL)",
			referrerID, models.ReferralStatusPending).
		Order("created_at DESC"))
}

func (r *referralRepository) FindInvite(ctx context.Context, referrerID uint, email string) (*models.Referral, error) {
	return r.first(ctx, r.db.Where("referrer_id = ? AND referee_email = ?",
		referrerID, strings.ToLower(strings.TrimSpace(email))))
}

func (r *referralRepository) first(ctx context.Context, q *gorm.DB) (*models.Referral, error) {
	var referral models.Referral
	if err := q.WithContext(ctx).First(&referral).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return &referral, nil
}

func (r *referralRepository) Complete(ctx context.Context, code string, refereeID uint, points int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referral_code = ? AND status = ?", code, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":         models.ReferralStatusCompleted,
			"referee_id":     refereeID,
			"points_awarded": points,
			"completed_at":   at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete referral: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *referralRepository) Expire(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referral_code = ? AND status = ?", code, models.ReferralStatusPending).
		Update("status", models.ReferralStatusExpired)
	if result.Error != nil {
		return false, fmt.Errorf("failed to expire referral: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *referralRepository) ListByReferrer(ctx context.Context, referrerID uint, limit int) ([]models.Referral, error) {
	var referrals []models.Referral
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&referrals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return referrals, nil
}
