package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/metrics"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/payment"

	"go.uber.org/zap"
)

type service struct {
	store    repositories.Store
	payments *payment.Registry
	cache    Cache
	metrics  metrics.Collector
	log      *zap.Logger
}

// NewService creates a new wallet service. cache may be nil.
func NewService(
	store repositories.Store,
	payments *payment.Registry,
	cache Cache,
	m metrics.Collector,
	log *zap.Logger,
) Service {
	if store == nil {
		panic("store is required")
	}
	if payments == nil {
		payments = payment.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		store:    store,
		payments: payments,
		cache:    cache,
		metrics:  metrics.OrNoop(m),
		log:      log.Named("wallet"),
	}
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if w := s.cached(ctx, userID); w != nil {
		return w, nil
	}

	w, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	s.fill(ctx, w)
	return w, nil
}

func (s *service) CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	w := &models.Wallet{UserID: userID}
	if err := s.store.Wallets().Create(ctx, w); err != nil {
		if errors.Is(err, repositories.ErrDuplicateWallet) {
			return s.GetWallet(ctx, userID)
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return w, nil
}

func (s *service) History(ctx context.Context, userID uint, limit, offset int) (*History, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	txns, total, err := s.store.Transactions().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	return &History{Transactions: txns, Total: total, Limit: limit, Offset: offset}, nil
}

// settlementCurrency is what each processor charges in when the caller does
// not ask for a currency.
func settlementCurrency(m payment.Method) string {
	if m == payment.MethodPaystack {
		return models.CurrencyNGN
	}
	return models.CurrencyUSD
}

func (s *service) InitiateTopUp(ctx context.Context, req TopUpRequest) (*payment.Charge, error) {
	if req.Method == payment.MethodWallet {
		return nil, apperrors.Validation("a wallet cannot be topped up from itself")
	}
	gw, err := s.payments.Get(req.Method)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = settlementCurrency(req.Method)
	}
	if _, ok := models.BalanceColumn(currency); !ok {
		return nil, apperrors.ErrUnsupportedCurrency
	}

	charge, err := gw.CreateCharge(ctx, payment.ChargeRequest{
		Amount:   req.Amount.Round(2),
		Currency: currency,
		UserID:   req.UserID,
		Email:    req.Email,
		Metadata: map[string]string{payment.MetaPurpose: payment.PurposeTopUp},
	})
	if err != nil {
		return nil, err
	}

	pending := &models.Transaction{
		UserID:      req.UserID,
		Amount:      charge.Amount,
		Currency:    currency,
		Type:        models.TransactionTypeCredit,
		Status:      models.TransactionStatusPending,
		Reference:   models.StringPtr(charge.Reference),
		Provider:    gw.Name(),
		Description: fmt.Sprintf("Wallet top-up via %s", gw.Name()),
	}
	if err := s.store.Transactions().Create(ctx, pending); err != nil {
		s.log.Warn("failed to record pending top-up",
			zap.String("reference", charge.Reference),
			zap.Error(err))
	}
	s.metrics.LedgerOp("topup_initiated", "success")
	return charge, nil
}

func (s *service) ConfirmTopUp(ctx context.Context, userID uint, method payment.Method, reference string) (*FundResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}
	if method == payment.MethodWallet {
		return nil, apperrors.ErrUnsupportedMethod
	}

	// A settled reference needs no processor round trip.
	if existing, err := s.store.Transactions().GetByReference(ctx, reference); err == nil &&
		existing.Status == models.TransactionStatusSuccess {
		return s.replay(ctx, existing, userID)
	}

	gw, err := s.payments.Get(method)
	if err != nil {
		return nil, err
	}
	result, err := gw.VerifyCharge(ctx, reference)
	if err != nil {
		return nil, apperrors.ErrPaymentNotConfirmed.Wrap(err)
	}
	switch r := result.(type) {
	case payment.ChargeSucceeded:
		return s.FundCharge(ctx, userID, method, r)
	case payment.ChargePending:
		return nil, apperrors.ErrPaymentPending
	case payment.ChargeFailed:
		if _, err := s.store.Transactions().MarkFailed(ctx, reference); err != nil {
			s.log.Warn("failed to mark top-up failed", zap.String("reference", reference), zap.Error(err))
		}
		return nil, apperrors.ErrPaymentNotConfirmed.Wrap(errors.New(r.Reason))
	}
	return nil, apperrors.ErrPaymentNotConfirmed
}
