package repositories

import (
	"context"
	"fmt"
	"time"

	"airswitch/internal/models"

	"gorm.io/gorm"
)

type ESimRepository interface {
	Create(ctx context.Context, esim *models.ESim) error
	GetByID(ctx context.Context, id uint) (*models.ESim, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.ESim, error)
	ListByUser(ctx context.Context, userID uint) ([]models.ESim, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

// OrderRepository holds EsimOrders. The unique reference makes Claim the
// serialization point for concurrent purchases of the same payment; every
// other mutation is conditional on the current status.
type OrderRepository interface {
	// Claim inserts a PENDING order, returning ErrDuplicateReference if one exists.
	Claim(ctx context.Context, order *models.EsimOrder) error
	GetByReference(ctx context.Context, reference string) (*models.EsimOrder, error)

	// Reclaim resets a FAILED order of the same user back to PENDING.
	Reclaim(ctx context.Context, order *models.EsimOrder) (bool, error)

	SetStage(ctx context.Context, reference, stage, externalID string) (bool, error)
	MarkRecorded(ctx context.Context, reference string, esimID uint, externalID string) (bool, error)
	MarkActivated(ctx context.Context, reference string) error
	MarkFailed(ctx context.Context, reference, stage, reason string) (bool, error)

	ListByUser(ctx context.Context, userID uint) ([]models.EsimOrder, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.EsimOrder, error)
}

type esimRepository struct {
	db *gorm.DB
}

func (r *esimRepository) Create(ctx context.Context, esim *models.ESim) error {
	if err := r.db.WithContext(ctx).Create(esim).Error; err != nil {
		return fmt.Errorf("failed to create esim: %w", err)
	}
	return nil
}

func (r *esimRepository) GetByID(ctx context.Context, id uint) (*models.ESim, error) {
	var esim models.ESim
	if err := r.db.WithContext(ctx).First(&esim, id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrESimNotFound
		}
		return nil, fmt.Errorf("failed to get esim: %w", err)
	}
	return &esim, nil
}

func (r *esimRepository) GetByExternalID(ctx context.Context, externalID string) (*models.ESim, error) {
	var esim models.ESim
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&esim).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrESimNotFound
		}
		return nil, fmt.Errorf("failed to get esim: %w", err)
	}
	return &esim, nil
}

func (r *esimRepository) ListByUser(ctx context.Context, userID uint) ([]models.ESim, error) {
	var esims []models.ESim
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&esims).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list esims: %w", err)
	}
	return esims, nil
}

func (r *esimRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).Model(&models.ESim{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update esim status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrESimNotFound
	}
	return nil
}

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Claim(ctx context.Context, order *models.EsimOrder) error {
	order.Status = models.OrderStatusPending
	order.Stage = models.StageInitiated
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByReference(ctx context.Context, reference string) (*models.EsimOrder, error) {
	var order models.EsimOrder
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&order).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) Reclaim(ctx context.Context, order *models.EsimOrder) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EsimOrder{}).
		Where("reference = ? AND status = ? AND user_id = ?",
			order.Reference, models.OrderStatusFailed, order.UserID).
		Updates(map[string]interface{}{
			"status":         models.OrderStatusPending,
			"stage":          models.StageInitiated,
			"plan_id":        order.PlanID,
			"payment_method": order.PaymentMethod,
			"amount":         order.Amount,
			"currency":       order.Currency,
			"points_used":    order.PointsUsed,
			"external_id":    "",
			"failure_reason": "",
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reclaim order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	return true, r.db.WithContext(ctx).Where("reference = ?", order.Reference).First(order).Error
}

func (r *orderRepository) SetStage(ctx context.Context, reference, stage, externalID string) (bool, error) {
	updates := map[string]interface{}{"stage": stage}
	if externalID != "" {
		updates["external_id"] = externalID
	}
	return r.updatePending(ctx, reference, updates)
}

func (r *orderRepository) MarkRecorded(ctx context.Context, reference string, esimID uint, externalID string) (bool, error) {
	return r.updatePending(ctx, reference, map[string]interface{}{
		"status":      models.OrderStatusActivated,
		"stage":       models.StageRecorded,
		"esim_id":     esimID,
		"external_id": externalID,
	})
}

func (r *orderRepository) MarkActivated(ctx context.Context, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.EsimOrder{}).
		Where("reference = ? AND status = ?", reference, models.OrderStatusActivated).
		Update("stage", models.StageActivated).Error
}

func (r *orderRepository) MarkFailed(ctx context.Context, reference, stage, reason string) (bool, error) {
	return r.updatePending(ctx, reference, map[string]interface{}{
		"status":         models.OrderStatusFailed,
		"stage":          stage,
		"failure_reason": reason,
	})
}

func (r *orderRepository) updatePending(ctx context.Context, reference string, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EsimOrder{}).
		Where("reference = ? AND status = ?", reference, models.OrderStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update order: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID uint) ([]models.EsimOrder, error) {
	var orders []models.EsimOrder
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.EsimOrder, error) {
	var orders []models.EsimOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.OrderStatusPending, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale orders: %w", err)
	}
	return orders, nil
}
