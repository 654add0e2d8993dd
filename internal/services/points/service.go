// Package points manages loyalty points: balances, history, bonuses and
// redemption into wallet credit.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/fx"
	"airswitch/internal/metrics"
	"airswitch/internal/models"
	"airswitch/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type WalletCache interface {
	InvalidateWallet(ctx context.Context, userID uint) error
}

type Service struct {
	store        repositories.Store
	rates        fx.Provider
	cache        WalletCache
	metrics      metrics.Collector
	log          *zap.Logger
	pointsPerUSD int64
	minRedeem    int64
}

func NewService(store repositories.Store, rates fx.Provider, cfg config.LedgerConfig, cache WalletCache,
	m metrics.Collector, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PointsPerUSD <= 0 {
		cfg.PointsPerUSD = 100
	}
	if cfg.MinRedeemPoints <= 0 {
		cfg.MinRedeemPoints = 100
	}
	return &Service{
		store:        store,
		rates:        rates,
		cache:        cache,
		metrics:      metrics.OrNoop(m),
		log:          log.Named("points"),
		pointsPerUSD: cfg.PointsPerUSD,
		minRedeem:    cfg.MinRedeemPoints,
	}
}

type Balance struct {
	models.UserPoints
	USDValue decimal.Decimal `json:"usd_value"`
}

type History struct {
	Transactions []models.PointsTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

type RedeemRequest struct {
	UserID   uint
	Points   int64
	Currency string
}

type RedeemResult struct {
	Points      *models.UserPoints  `json:"points"`
	Transaction *models.Transaction `json:"transaction"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
}

// USDValue converts points to dollars at the fixed rate.
func (s *Service) USDValue(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).DivRound(decimal.NewFromInt(s.pointsPerUSD), 2)
}

// Balance returns the user's points, creating the row on first access.
func (s *Service) Balance(ctx context.Context, userID uint) (*Balance, error) {
	up, err := s.store.Points().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return &Balance{UserPoints: *up, USDValue: s.USDValue(up.AvailablePoints)}, nil
}

func (s *Service) History(ctx context.Context, userID uint, limit, offset int) (*History, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	txns, total, err := s.store.Points().History(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if txns == nil {
		txns = []models.PointsTransaction{}
	}
	return &History{Transactions: txns, Total: total, Limit: limit, Offset: offset}, nil
}

// Breakdown sums the signed points movements per transaction type.
func (s *Service) Breakdown(ctx context.Context, userID uint) (map[string]int64, error) {
	out, err := s.store.Points().Breakdown(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return out, nil
}

// Redeem converts points into wallet credit. The points spend, the wallet
// credit and both audit rows commit together or not at all.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (res *RedeemResult, err error) {
	defer func() { s.metrics.LedgerOp("redeem", outcome(err)) }()

	if req.Points < s.minRedeem {
		return nil, apperrors.Validation(fmt.Sprintf("minimum redemption is %d points", s.minRedeem))
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = models.CurrencyUSD
	}
	if _, ok := models.BalanceColumn(currency); !ok {
		return nil, apperrors.ErrUnsupportedCurrency
	}
	amount, err := fx.Convert(ctx, s.rates, s.USDValue(req.Points), models.CurrencyUSD, currency)
	if err != nil {
		return nil, apperrors.ErrUnsupportedCurrency.Wrap(err)
	}

	reference := "rdm_" + uuid.NewString()
	log := s.log.With(
		zap.Uint("user_id", req.UserID),
		zap.Int64("points", req.Points),
		zap.String("reference", reference))

	txn := &models.Transaction{
		UserID:      req.UserID,
		Amount:      amount,
		Currency:    currency,
		Type:        models.TransactionTypeCredit,
		Status:      models.TransactionStatusSuccess,
		Reference:   models.StringPtr(reference),
		Provider:    "points",
		Description: fmt.Sprintf("Redeemed %d points", req.Points),
	}
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Points().Spend(ctx, req.UserID, req.Points); err != nil {
			return err
		}
		if err := tx.Points().AddTransaction(ctx, &models.PointsTransaction{
			UserID:      req.UserID,
			Amount:      -req.Points,
			Type:        models.PointsTypeRedeem,
			Description: fmt.Sprintf("Redeemed for %s %s", amount.StringFixed(2), currency),
			Reference:   reference,
		}); err != nil {
			return err
		}
		if err := tx.Wallets().Credit(ctx, req.UserID, currency, amount); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, txn)
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrInsufficientPoints):
			return nil, apperrors.ErrInsufficientPoints
		case errors.Is(err, repositories.ErrWalletNotFound):
			return nil, apperrors.ErrWalletNotFound
		}
		log.Error("points redemption failed", zap.Error(err))
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, req.UserID); err != nil {
			log.Warn("failed to invalidate wallet cache", zap.Error(err))
		}
	}
	log.Info("points redeemed", zap.String("amount", amount.StringFixed(2)), zap.String("currency", currency))

	res = &RedeemResult{Transaction: txn, Amount: amount, Currency: currency}
	if up, err := s.store.Points().GetOrCreate(ctx, req.UserID); err == nil {
		res.Points = up
	}
	return res, nil
}

// AwardBonus credits points outside the referral flow.
func (s *Service) AwardBonus(ctx context.Context, userID uint, points int64, description string) (up *models.UserPoints, err error) {
	defer func() { s.metrics.LedgerOp("bonus", outcome(err)) }()

	if points <= 0 {
		return nil, apperrors.Validation("points must be positive")
	}
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if description == "" {
		description = "Bonus points"
	}

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Points().Award(ctx, userID, points); err != nil {
			return err
		}
		return tx.Points().AddTransaction(ctx, &models.PointsTransaction{
			UserID:      userID,
			Amount:      points,
			Type:        models.PointsTypeBonus,
			Description: description,
		})
	})
	if err != nil {
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	s.log.Info("bonus points awarded", zap.Uint("user_id", userID), zap.Int64("points", points))
	up, err = s.store.Points().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return up, nil
}

func outcome(err error) string {
	if err != nil {
		return strings.ToLower(string(apperrors.KindOf(err)))
	}
	return "success"
}
