package repositories

import (
	"context"
	"fmt"

	"airswitch/internal/models"

	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// Settle promotes a PENDING or FAILED row in place; a declined charge can
// be retried under the same reference.
func (r *transactionRepository) Settle(ctx context.Context, txn *models.Transaction) error {
	ref := txn.Ref()
	if ref != "" {
		result := r.db.WithContext(ctx).
			Model(&models.Transaction{}).
			Where("reference = ? AND status IN ? AND type = ? AND user_id = ?",
				ref, []string{models.TransactionStatusPending, models.TransactionStatusFailed}, txn.Type, txn.UserID).
			Updates(map[string]interface{}{
				"status":      models.TransactionStatusSuccess,
				"amount":      txn.Amount,
				"currency":    txn.Currency,
				"description": txn.Description,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to settle transaction: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return r.db.WithContext(ctx).Where("reference = ?", ref).First(txn).Error
		}
	}

	txn.Status = models.TransactionStatusSuccess
	return r.Create(ctx, txn)
}

func (r *transactionRepository) MarkFailed(ctx context.Context, reference string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, models.TransactionStatusPending).
		Update("status", models.TransactionStatusFailed)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark transaction failed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error) {
	var (
		txns  []models.Transaction
		total int64
	)
	q := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txns, total, nil
}
