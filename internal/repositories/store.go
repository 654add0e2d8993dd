package repositories

import (
	"context"
	"errors"
)

var (
	ErrDuplicateReference  = errors.New("reference already recorded")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrESimNotFound        = errors.New("esim not found")
	ErrReferralNotFound    = errors.New("referral not found")
	ErrDuplicateCode       = errors.New("referral code already exists")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrNumberTaken         = errors.New("phone number already held")
	ErrNumberNotFound      = errors.New("phone number not found")
)

// Store is the Ledger Store. Every repository obtained from the Store passed
// to an Atomic callback runs inside the same database transaction.
type Store interface {
	Users() UserRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Points() PointsRepository
	Referrals() ReferralRepository
	ESims() ESimRepository
	Orders() OrderRepository
	Compensations() CompensationRepository
	Telecom() TelecomRepository

	// Atomic runs fn in one transaction; any error rolls back every write fn made.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
