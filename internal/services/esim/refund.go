package esim

import (
	"context"
	"errors"
	"strconv"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// creditedReferencePrefix keys the wallet credit for a captured charge
// that could not buy its eSIM. One credit exists per payment reference.
const creditedReferencePrefix = "credit_"

func creditedReference(reference string) string {
	return creditedReferencePrefix + reference
}

// errCreditedToWallet is returned when the purchase failed after the
// customer paid and the payment was moved into their wallet instead.
func errCreditedToWallet(cause *apperrors.DomainError) error {
	return cause.WithMessage("%s; the captured payment was credited to your wallet", cause.Message)
}

// alreadyCredited reports whether the charge behind reference was moved
// into the wallet, after which it can no longer pay for an eSIM.
func (o *Orchestrator) alreadyCredited(ctx context.Context, reference string) (bool, error) {
	_, err := o.store.Transactions().GetByReference(ctx, creditedReference(reference))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repositories.ErrTransactionNotFound):
		return false, nil
	}
	return false, apperrors.ErrTransactionFailed.Wrap(err)
}

// creditShortfall handles a card or bank purchase whose points no longer
// cover the discount. A charge the customer already paid is credited to
// the wallet; otherwise the plain points error is returned.
func (o *Orchestrator) creditShortfall(ctx context.Context, req PurchaseRequest) error {
	charge, err := o.verifiedCharge(ctx, req)
	if err != nil {
		return apperrors.ErrInsufficientPoints
	}
	md := charge.Metadata
	if v, ok := md[payment.MetaUserID]; ok && v != strconv.FormatUint(uint64(req.UserID), 10) {
		return apperrors.ErrInsufficientPoints
	}
	if v, ok := md[payment.MetaPurpose]; ok && v != payment.PurposeESim {
		return apperrors.ErrInsufficientPoints
	}
	if existing, err := o.store.Transactions().GetByReference(ctx, req.Reference); err == nil &&
		existing.Status == models.TransactionStatusSuccess {
		return apperrors.ErrInsufficientPoints
	}

	log := o.log.With(zap.Uint("user_id", req.UserID), zap.String("reference", req.Reference))
	if !o.creditCaptured(ctx, log, req.UserID, req.Reference, charge.Amount, charge.Currency) {
		return apperrors.ErrInsufficientPoints
	}
	return errCreditedToWallet(apperrors.ErrInsufficientPoints)
}

// creditCaptured credits a captured charge to the wallet and fails its
// pending debit. Repeated calls for one reference credit once.
func (o *Orchestrator) creditCaptured(ctx context.Context, log *zap.Logger, userID uint, reference string, amount decimal.Decimal, currency string) bool {
	if _, ok := models.BalanceColumn(currency); !ok || !amount.IsPositive() {
		log.Error("captured payment cannot be credited", zap.String("currency", currency))
		return false
	}
	txn := &models.Transaction{
		UserID:      userID,
		Amount:      amount.Round(2),
		Currency:    currency,
		Type:        models.TransactionTypeCredit,
		Status:      models.TransactionStatusSuccess,
		Reference:   models.StringPtr(creditedReference(reference)),
		Provider:    "wallet",
		Description: "Credit for unfulfilled eSIM purchase",
		Metadata:    models.JSON{"payment_reference": reference},
	}
	err := o.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Wallets().Credit(ctx, userID, currency, txn.Amount); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		_, err := tx.Transactions().MarkFailed(ctx, reference)
		return err
	})
	switch {
	case err == nil:
		o.invalidate(ctx, log, userID)
		log.Info("captured payment credited to wallet", zap.String("amount", txn.Amount.StringFixed(2)))
		return true
	case errors.Is(err, repositories.ErrDuplicateReference):
		return true
	}
	log.Error("failed to credit captured payment", zap.Error(err))
	return false
}
