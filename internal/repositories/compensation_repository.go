package repositories

import (
	"context"
	"fmt"
	"time"

	"airswitch/internal/models"

	"gorm.io/gorm"
)

type CompensationRepository interface {
	Create(ctx context.Context, c *models.Compensation) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Compensation, error)
	Update(ctx context.Context, c *models.Compensation) error
}

type compensationRepository struct {
	db *gorm.DB
}

func (r *compensationRepository) Create(ctx context.Context, c *models.Compensation) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create compensation: %w", err)
	}
	return nil
}

func (r *compensationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Compensation, error) {
	var due []models.Compensation
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.CompensationStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due compensations: %w", err)
	}
	return due, nil
}

func (r *compensationRepository) Update(ctx context.Context, c *models.Compensation) error {
	err := r.db.WithContext(ctx).
		Model(&models.Compensation{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"status":          c.Status,
			"attempts":        c.Attempts,
			"last_error":      c.LastError,
			"next_attempt_at": c.NextAttemptAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update compensation: %w", err)
	}
	return nil
}
