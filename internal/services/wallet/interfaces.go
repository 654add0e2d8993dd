package wallet

import (
	"context"

	"airswitch/internal/models"
	"airswitch/internal/services/payment"
)

// Service defines the wallet operations exposed to handlers and webhooks.
type Service interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	History(ctx context.Context, userID uint, limit, offset int) (*History, error)

	Fund(ctx context.Context, req FundRequest) (*FundResult, error)

	InitiateTopUp(ctx context.Context, req TopUpRequest) (*payment.Charge, error)
	ConfirmTopUp(ctx context.Context, userID uint, method payment.Method, reference string) (*FundResult, error)
	// FundCharge credits a charge that was already authenticated, e.g. by a
	// signed webhook.
	FundCharge(ctx context.Context, userID uint, method payment.Method, charge payment.ChargeSucceeded) (*FundResult, error)
}
