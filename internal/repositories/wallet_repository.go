package repositories

import (
	"context"
	"errors"

	"airswitch/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateWallet     = errors.New("wallet already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// WalletRepository defines the wallet balance operations. Credit and Debit
// are single conditional UPDATE statements; neither reads the balance first.
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)

	// Credit adds amount to the currency balance.
	Credit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error

	// Debit subtracts amount only if the balance covers it, returning
	// ErrInsufficientFunds when no row qualified.
	Debit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error
}
