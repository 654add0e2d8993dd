package wallet

import (
	"context"
	"errors"
	"strconv"
	"strings"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fund credits the wallet and settles the reference in one atomic unit. A
// reference that already settled is returned with Replayed set and no
// second credit.
func (s *service) Fund(ctx context.Context, req FundRequest) (res *FundResult, err error) {
	defer func() { s.metrics.LedgerOp("fund", ledgerOutcome(res, err)) }()

	if req.UserID == 0 {
		return nil, apperrors.Validation("user is required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if _, ok := models.BalanceColumn(req.Currency); !ok {
		return nil, apperrors.ErrUnsupportedCurrency
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		req.Reference = manualReferencePrefix + uuid.NewString()
	}
	if req.Provider == "" {
		req.Provider = "manual"
	}
	if req.Description == "" {
		req.Description = "Wallet funding"
	}

	log := s.log.With(
		zap.Uint("user_id", req.UserID),
		zap.String("reference", req.Reference),
		zap.String("currency", req.Currency))

	existing, err := s.store.Transactions().GetByReference(ctx, req.Reference)
	switch {
	case err == nil:
		if existing.UserID != req.UserID || existing.Type != models.TransactionTypeCredit {
			return nil, apperrors.ErrReferenceMismatch
		}
		if existing.Status == models.TransactionStatusSuccess {
			log.Info("funding already applied")
			return s.replay(ctx, existing, req.UserID)
		}
	case !errors.Is(err, repositories.ErrTransactionNotFound):
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	txn := &models.Transaction{
		UserID:      req.UserID,
		Amount:      req.Amount.Round(2),
		Currency:    req.Currency,
		Type:        models.TransactionTypeCredit,
		Reference:   models.StringPtr(req.Reference),
		Provider:    req.Provider,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Wallets().Credit(ctx, req.UserID, req.Currency, txn.Amount); err != nil {
			return err
		}
		return tx.Transactions().Settle(ctx, txn)
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateReference):
			// A concurrent delivery settled first.
			if settled, gerr := s.store.Transactions().GetByReference(ctx, req.Reference); gerr == nil &&
				settled.Status == models.TransactionStatusSuccess && settled.UserID == req.UserID {
				return s.replay(ctx, settled, req.UserID)
			}
			return nil, apperrors.ErrReferenceMismatch
		case errors.Is(err, repositories.ErrWalletNotFound):
			return nil, apperrors.ErrWalletNotFound
		}
		log.Error("wallet funding failed", zap.Error(err))
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	s.invalidate(ctx, req.UserID)
	log.Info("wallet funded", zap.String("amount", txn.Amount.StringFixed(2)))

	res = &FundResult{Transaction: txn}
	if w, err := s.store.Wallets().GetByUserID(ctx, req.UserID); err == nil {
		res.Wallet = w
	}
	return res, nil
}

func (s *service) FundCharge(ctx context.Context, userID uint, method payment.Method, charge payment.ChargeSucceeded) (*FundResult, error) {
	md := charge.Metadata
	if v, ok := md[payment.MetaUserID]; ok && v != strconv.FormatUint(uint64(userID), 10) {
		return nil, apperrors.ErrPaymentMismatch.WithMessage("payment belongs to another user")
	}
	if v, ok := md[payment.MetaPurpose]; ok && v != payment.PurposeTopUp {
		return nil, apperrors.ErrPaymentMismatch.WithMessage("payment was not made for a wallet top-up")
	}

	return s.Fund(ctx, FundRequest{
		UserID:      userID,
		Amount:      charge.Amount,
		Currency:    charge.Currency,
		Reference:   charge.Reference,
		Provider:    string(method),
		Description: "Wallet top-up via " + string(method),
	})
}

func (s *service) replay(ctx context.Context, txn *models.Transaction, userID uint) (*FundResult, error) {
	if txn.UserID != userID {
		return nil, apperrors.ErrReferenceMismatch
	}
	res := &FundResult{Transaction: txn, Replayed: true}
	if w, err := s.GetWallet(ctx, userID); err == nil {
		res.Wallet = w
	}
	return res, nil
}

func ledgerOutcome(res *FundResult, err error) string {
	switch {
	case err != nil:
		return strings.ToLower(string(apperrors.KindOf(err)))
	case res != nil && res.Replayed:
		return "replayed"
	default:
		return "success"
	}
}
