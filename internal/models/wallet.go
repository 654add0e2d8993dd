package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supported wallet currencies.
const (
	CurrencyUSD = "USD"
	CurrencyNGN = "NGN"
)

// Wallet holds one balance per supported currency. Balances are only
// mutated through conditional updates inside ledger commits.
type Wallet struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	UserID     uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	BalanceUSD decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance_usd"`
	BalanceNGN decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance_ngn"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Balance returns the balance held in currency.
func (w *Wallet) Balance(currency string) (decimal.Decimal, bool) {
	switch currency {
	case CurrencyUSD:
		return w.BalanceUSD, true
	case CurrencyNGN:
		return w.BalanceNGN, true
	}
	return decimal.Zero, false
}

// BalanceColumn maps a currency onto its wallets column.
func BalanceColumn(currency string) (string, bool) {
	switch currency {
	case CurrencyUSD:
		return "balance_usd", true
	case CurrencyNGN:
		return "balance_ngn", true
	}
	return "", false
}
