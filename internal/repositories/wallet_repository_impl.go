package repositories

import (
	"context"
	"fmt"

	"airswitch/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type walletRepository struct {
	db *gorm.DB
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateWallet
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Credit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error {
	column, ok := models.BalanceColumn(currency)
	if !ok {
		return ErrUnsupportedCurrency
	}

	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to credit wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *walletRepository) Debit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error {
	column, ok := models.BalanceColumn(currency)
	if !ok {
		return ErrUnsupportedCurrency
	}

	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ? AND "+column+" >= ?", userID, amount).
		Update(column, gorm.Expr(column+" - ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to debit wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
