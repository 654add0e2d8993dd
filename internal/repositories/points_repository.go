package repositories

import (
	"context"
	"fmt"

	"airswitch/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsRepository keeps UserPoints and its audit trail. Spend and Award
// preserve total == available + redeemed in a single statement each.
type PointsRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.UserPoints, error)

	// Spend moves points from available to redeemed when available covers
	// them, returning ErrInsufficientPoints otherwise.
	Spend(ctx context.Context, userID uint, points int64) error

	// Award creates the row if missing and adds points to total and available.
	Award(ctx context.Context, userID uint, points int64) error

	AddTransaction(ctx context.Context, txn *models.PointsTransaction) error
	History(ctx context.Context, userID uint, limit, offset int) ([]models.PointsTransaction, int64, error)
	Breakdown(ctx context.Context, userID uint) (map[string]int64, error)
}

type pointsRepository struct {
	db *gorm.DB
}

func (r *pointsRepository) GetOrCreate(ctx context.Context, userID uint) (*models.UserPoints, error) {
	points := models.UserPoints{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user points: %w", err)
	}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to get user points: %w", err)
	}
	return &points, nil
}

func (r *pointsRepository) Spend(ctx context.Context, userID uint, points int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.UserPoints{}).
		Where("user_id = ? AND available_points >= ?", userID, points).
		Updates(map[string]interface{}{
			"available_points": gorm.Expr("available_points - ?", points),
			"redeemed_points":  gorm.Expr("redeemed_points + ?", points),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to spend points: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

func (r *pointsRepository) Award(ctx context.Context, userID uint, points int64) error {
	row := models.UserPoints{
		UserID:          userID,
		TotalPoints:     points,
		AvailablePoints: points,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_points":     gorm.Expr("user_points.total_points + ?", points),
				"available_points": gorm.Expr("user_points.available_points + ?", points),
				"updated_at":       gorm.Expr("NOW()"),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to award points: %w", err)
	}
	return nil
}

func (r *pointsRepository) AddTransaction(ctx context.Context, txn *models.PointsTransaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to create points transaction: %w", err)
	}
	return nil
}

func (r *pointsRepository) History(ctx context.Context, userID uint, limit, offset int) ([]models.PointsTransaction, int64, error) {
	var (
		txns  []models.PointsTransaction
		total int64
	)
	q := r.db.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count points history: %w", err)
	}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&txns).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get points history: %w", err)
	}
	return txns, total, nil
}

func (r *pointsRepository) Breakdown(ctx context.Context, userID uint) (map[string]int64, error) {
	var rows []struct {
		Type  string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get points breakdown: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Total
	}
	return out, nil
}
