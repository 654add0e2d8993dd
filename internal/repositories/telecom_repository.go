package repositories

import (
	"context"
	"fmt"

	"airswitch/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TelecomRepository persists phone numbers, messages and calls. Carrier
// events are keyed by the carrier's own identifier so webhook redelivery is
// harmless.
type TelecomRepository interface {
	// SaveMessage reports false when the message was already stored.
	SaveMessage(ctx context.Context, msg *models.Message) (bool, error)
	UpdateMessageStatus(ctx context.Context, externalID, status string) (bool, error)
	ListMessages(ctx context.Context, userID uint, limit, offset int) ([]models.Message, int64, error)
	UpsertCall(ctx context.Context, call *models.Call) error

	// ClaimNumber inserts n, or takes over a FAILED row for the same number.
	// Any other holder yields ErrNumberTaken.
	ClaimNumber(ctx context.Context, n *models.PhoneNumber) error
	GetNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumber, error)
	// UpdateNumber sets the status, and the order id when non-empty.
	UpdateNumber(ctx context.Context, phoneNumber, orderID, status string) (bool, error)
	ListNumbers(ctx context.Context, userID uint) ([]models.PhoneNumber, error)
}

type telecomRepository struct {
	db *gorm.DB
}

func (r *telecomRepository) SaveMessage(ctx context.Context, msg *models.Message) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(msg)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save message: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *telecomRepository) UpdateMessageStatus(ctx context.Context, externalID, status string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("external_id = ?", externalID).
		Update("status", status)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update message status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *telecomRepository) ListMessages(ctx context.Context, userID uint, limit, offset int) ([]models.Message, int64, error) {
	var (
		msgs  []models.Message
		total int64
	)
	q := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&msgs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, total, nil
}

func (r *telecomRepository) UpsertCall(ctx context.Context, call *models.Call) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "call_control_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":       gorm.Expr("EXCLUDED.status"),
				"started_at":   gorm.Expr("COALESCE(calls.started_at, EXCLUDED.started_at)"),
				"answered_at":  gorm.Expr("COALESCE(calls.answered_at, EXCLUDED.answered_at)"),
				"ended_at":     gorm.Expr("COALESCE(EXCLUDED.ended_at, calls.ended_at)"),
				"hangup_cause": gorm.Expr("COALESCE(NULLIF(EXCLUDED.hangup_cause, ''), calls.hangup_cause)"),
				"updated_at":   gorm.Expr("NOW()"),
			}),
		}).
		Create(call).Error
	if err != nil {
		return fmt.Errorf("failed to upsert call: %w", err)
	}
	return nil
}

func (r *telecomRepository) ClaimNumber(ctx context.Context, n *models.PhoneNumber) error {
	err := r.db.WithContext(ctx).Create(n).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to claim number: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&models.PhoneNumber{}).
		Where("phone_number = ? AND status = ?", n.PhoneNumber, models.NumberStatusFailed).
		Updates(map[string]interface{}{
			"user_id":  n.UserID,
			"order_id": "",
			"status":   n.Status,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reclaim number: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNumberTaken
	}
	return r.db.WithContext(ctx).Where("phone_number = ?", n.PhoneNumber).First(n).Error
}

func (r *telecomRepository) GetNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumber, error) {
	var n models.PhoneNumber
	if err := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&n).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrNumberNotFound
		}
		return nil, fmt.Errorf("failed to get number: %w", err)
	}
	return &n, nil
}

func (r *telecomRepository) UpdateNumber(ctx context.Context, phoneNumber, orderID, status string) (bool, error) {
	updates := map[string]interface{}{"status": status}
	if orderID != "" {
		updates["order_id"] = orderID
	}
	result := r.db.WithContext(ctx).
		Model(&models.PhoneNumber{}).
		Where("phone_number = ?", phoneNumber).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update number: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *telecomRepository) ListNumbers(ctx context.Context, userID uint) ([]models.PhoneNumber, error) {
	var numbers []models.PhoneNumber
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&numbers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list numbers: %w", err)
	}
	return numbers, nil
}
