package repositories

import (
	"context"

	"gorm.io/gorm"
)

// GormStore implements Store on top of gorm/postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository                 { return &userRepository{db: s.db} }
func (s *GormStore) Wallets() WalletRepository             { return &walletRepository{db: s.db} }
func (s *GormStore) Transactions() TransactionRepository   { return &transactionRepository{db: s.db} }
func (s *GormStore) Points() PointsRepository              { return &pointsRepository{db: s.db} }
func (s *GormStore) Referrals() ReferralRepository         { return &referralRepository{db: s.db} }
func (s *GormStore) ESims() ESimRepository                 { return &esimRepository{db: s.db} }
func (s *GormStore) Orders() OrderRepository               { return &orderRepository{db: s.db} }
func (s *GormStore) Compensations() CompensationRepository { return &compensationRepository{db: s.db} }
func (s *GormStore) Telecom() TelecomRepository            { return &telecomRepository{db: s.db} }

// Atomic runs fn inside db.Transaction. Nested calls become savepoints.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// DB exposes the underlying handle for health checks and migrations.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}
