package wallet

import (
	"context"

	"airswitch/internal/models"
	"airswitch/internal/services/payment"

	"github.com/shopspring/decimal"
)

// FundRequest credits a wallet. Reference is the idempotency key; an empty
// reference gets a generated one.
type FundRequest struct {
	UserID      uint
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Provider    string
	Description string
	Metadata    models.JSON
}

type FundResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Wallet      *models.Wallet      `json:"wallet,omitempty"`
	Replayed    bool                `json:"replayed"`
}

// TopUpRequest starts a card or bank payment that funds the wallet once
// confirmed. Currency defaults to the processor's settlement currency.
type TopUpRequest struct {
	UserID   uint
	Email    string
	Amount   decimal.Decimal
	Currency string
	Method   payment.Method
}

// History is one page of wallet transactions.
type History struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// Cache is the wallet read-through cache.
type Cache interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	CacheWallet(ctx context.Context, wallet *models.Wallet) error
	InvalidateWallet(ctx context.Context, userID uint) error
}
