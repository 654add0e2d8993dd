// Package esim sells and manages eSIMs. The Orchestrator turns an authorized
// payment into exactly one recorded eSIM order per payment reference.
package esim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/fx"
	"airswitch/internal/metrics"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/provisioning"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compensator undoes an external resource that could not be recorded
// locally. Implementations attempt once immediately and queue retries; the
// returned error is informational.
type Compensator interface {
	Compensate(ctx context.Context, orderReference, externalID, reason string) error
}

type WalletCache interface {
	InvalidateWallet(ctx context.Context, userID uint) error
}

type PurchaseRequest struct {
	UserID      uint
	PlanID      string
	Method      payment.Method
	Reference   string
	PointsToUse int64
	// Verified carries a charge already authenticated by a signed webhook,
	// skipping the VerifyCharge round trip.
	Verified *payment.ChargeSucceeded
}

type PurchaseResult struct {
	Order     *models.EsimOrder `json:"order"`
	ESim      *models.ESim      `json:"esim,omitempty"`
	Replayed  bool              `json:"replayed"`
	Activated bool              `json:"activated"`
}

type OrchestratorDeps struct {
	Store        repositories.Store
	Payments     *payment.Registry
	Provisioning provisioning.Gateway
	Compensator  Compensator
	Rates        fx.Provider
	Catalog      *Catalog
	Cache        WalletCache
	Metrics      metrics.Collector
	Logger       *zap.Logger
	PointsPerUSD int64
}

type Orchestrator struct {
	store        repositories.Store
	payments     *payment.Registry
	provision    provisioning.Gateway
	compensator  Compensator
	rates        fx.Provider
	catalog      *Catalog
	cache        WalletCache
	metrics      metrics.Collector
	log          *zap.Logger
	pointsPerUSD int64
	now          func() time.Time
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Catalog == nil {
		d.Catalog = DefaultCatalog()
	}
	if d.Payments == nil {
		d.Payments = payment.NewRegistry()
	}
	if d.PointsPerUSD <= 0 {
		d.PointsPerUSD = 100
	}
	return &Orchestrator{
		store:        d.Store,
		payments:     d.Payments,
		provision:    d.Provisioning,
		compensator:  d.Compensator,
		rates:        d.Rates,
		catalog:      d.Catalog,
		cache:        d.Cache,
		metrics:      metrics.OrNoop(d.Metrics),
		log:          d.Logger.Named("esim"),
		pointsPerUSD: d.PointsPerUSD,
		now:          time.Now,
	}
}

// quote is the price of a plan after points, in USD.
type quote struct {
	plan        Plan
	points      int64
	pointsValue decimal.Decimal
	due         decimal.Decimal
}

func (o *Orchestrator) quote(planID string, points int64) (quote, error) {
	plan, err := o.catalog.Get(planID)
	if err != nil {
		return quote{}, err
	}
	if points < 0 {
		return quote{}, apperrors.Validation("points cannot be negative")
	}
	value := decimal.NewFromInt(points).DivRound(decimal.NewFromInt(o.pointsPerUSD), 2)
	if value.GreaterThan(plan.Price) {
		return quote{}, apperrors.Validation("points exceed the plan price")
	}
	return quote{plan: plan, points: points, pointsValue: value, due: plan.Price.Sub(value)}, nil
}

// authorization is what the payment check settled on: the amount and
// currency that will be recorded against the reference.
type authorization struct {
	amount   decimal.Decimal
	currency string
}

// Purchase provisions an eSIM for an authorized payment. Calling it again
// with the same reference returns the first result with Replayed set.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) (res *PurchaseResult, err error) {
	start := o.now()
	defer func() {
		o.metrics.Purchase(string(req.Method), outcome(res, err), o.now().Sub(start))
	}()

	if req.UserID == 0 {
		return nil, apperrors.Validation("user is required")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}
	if _, err := payment.ParseMethod(string(req.Method)); err != nil {
		return nil, err
	}
	q, err := o.quote(req.PlanID, req.PointsToUse)
	if err != nil {
		return nil, err
	}

	log := o.log.With(
		zap.Uint("user_id", req.UserID),
		zap.String("reference", req.Reference),
		zap.String("plan_id", req.PlanID),
		zap.String("method", string(req.Method)))

	if existing, err := o.store.Orders().GetByReference(ctx, req.Reference); err == nil {
		if done, res, err := o.existingOrder(ctx, existing, req.UserID); done {
			return res, err
		}
	} else if !errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	auth, err := o.authorize(ctx, req, q)
	if err != nil {
		log.Info("purchase not authorized", zap.Error(err))
		return nil, err
	}

	order := &models.EsimOrder{
		UserID:        req.UserID,
		PlanID:        q.plan.ID,
		Reference:     req.Reference,
		PaymentMethod: string(req.Method),
		Amount:        auth.amount,
		Currency:      auth.currency,
		PointsUsed:    q.points,
	}
	if err := o.claim(ctx, order); err != nil {
		var replay *replayError
		if errors.As(err, &replay) {
			return replay.result, nil
		}
		return nil, err
	}
	o.setStage(ctx, log, order.Reference, models.StagePaymentVerified, "")

	resource, err := o.provision.CreateResource(ctx, 1)
	if err != nil {
		if errors.Is(err, provisioning.ErrOutcomeUnknown) {
			// The SIM may exist upstream. The order stays PENDING so a retry
			// is rejected until the stale sweep resolves it.
			log.Warn("provisioning outcome unknown", zap.Error(err))
			return nil, apperrors.ErrProvisioningUnknown.Wrap(err)
		}
		log.Error("provisioning failed", zap.Error(err))
		o.markFailed(context.WithoutCancel(ctx), log, order.Reference, models.StagePaymentVerified, err.Error())
		return nil, apperrors.ErrProvisioningFailed.Wrap(err)
	}

	// The resource exists upstream now; bookkeeping must finish even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	log = log.With(zap.String("external_id", resource.ExternalID))

	var esim *models.ESim
	err = o.recordExternal(ctx, order.Reference, resource.ExternalID)
	if err == nil {
		esim, err = o.commit(ctx, req, q, auth, resource)
	}
	if err != nil {
		log.Error("ledger commit failed after provisioning", zap.Error(err))
		o.compensate(ctx, log, order.Reference, resource.ExternalID, err)
		if req.Method != payment.MethodWallet && errors.Is(err, apperrors.ErrBalanceChanged) &&
			o.creditCaptured(ctx, log, req.UserID, req.Reference, auth.amount, auth.currency) {
			return nil, errCreditedToWallet(apperrors.ErrBalanceChanged)
		}
		return o.commitFailure(ctx, req, err)
	}

	activated := o.activate(ctx, log, order.Reference, esim)
	o.invalidate(ctx, log, req.UserID)

	if fresh, err := o.store.Orders().GetByReference(ctx, order.Reference); err == nil {
		order = fresh
	}
	log.Info("esim purchased", zap.Bool("activated", activated))
	return &PurchaseResult{Order: order, ESim: esim, Activated: activated}, nil
}

// existingOrder resolves a purchase whose reference already has an order.
// done is false when the caller should go on and try to reclaim it.
func (o *Orchestrator) existingOrder(ctx context.Context, order *models.EsimOrder, userID uint) (bool, *PurchaseResult, error) {
	if order.UserID != userID {
		return true, nil, apperrors.ErrReferenceMismatch
	}
	switch order.Status {
	case models.OrderStatusActivated:
		res, err := o.replay(ctx, order)
		return true, res, err
	case models.OrderStatusPending:
		return true, nil, apperrors.ErrOrderInProgress
	}
	return false, nil, nil
}

type replayError struct {
	result *PurchaseResult
}

func (e *replayError) Error() string { return "already processed" }

// claim inserts the PENDING order. The unique reference is where concurrent
// purchases of one payment serialize; losers observe the winner's order.
func (o *Orchestrator) claim(ctx context.Context, order *models.EsimOrder) error {
	err := o.store.Orders().Claim(ctx, order)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrDuplicateReference) {
		return apperrors.ErrTransactionFailed.Wrap(err)
	}

	existing, err := o.store.Orders().GetByReference(ctx, order.Reference)
	if err != nil {
		return apperrors.ErrTransactionFailed.Wrap(err)
	}
	if done, res, err := o.existingOrder(ctx, existing, order.UserID); done {
		if err != nil {
			return err
		}
		return &replayError{result: res}
	}

	ok, err := o.store.Orders().Reclaim(ctx, order)
	if err != nil {
		return apperrors.ErrTransactionFailed.Wrap(err)
	}
	if !ok {
		return apperrors.ErrOrderInProgress
	}
	return nil
}

func (o *Orchestrator) authorize(ctx context.Context, req PurchaseRequest, q quote) (authorization, error) {
	if q.points > 0 {
		up, err := o.store.Points().GetOrCreate(ctx, req.UserID)
		if err != nil {
			return authorization{}, apperrors.ErrTransactionFailed.Wrap(err)
		}
		if up.AvailablePoints < q.points {
			if req.Method != payment.MethodWallet && q.due.IsPositive() {
				return authorization{}, o.creditShortfall(ctx, req)
			}
			return authorization{}, apperrors.ErrInsufficientPoints
		}
	}

	if !q.due.IsPositive() {
		return authorization{amount: decimal.Zero, currency: models.CurrencyUSD}, nil
	}

	if req.Method == payment.MethodWallet {
		wallet, err := o.store.Wallets().GetByUserID(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrWalletNotFound) {
				return authorization{}, apperrors.ErrWalletNotFound
			}
			return authorization{}, apperrors.ErrTransactionFailed.Wrap(err)
		}
		if wallet.BalanceUSD.LessThan(q.due) {
			return authorization{}, apperrors.ErrInsufficientBalance
		}
		return authorization{amount: q.due, currency: models.CurrencyUSD}, nil
	}

	credited, err := o.alreadyCredited(ctx, req.Reference)
	if err != nil {
		return authorization{}, err
	}
	if credited {
		return authorization{}, apperrors.ErrPaymentMismatch.WithMessage("payment was already credited to the wallet")
	}
	charge, err := o.verifiedCharge(ctx, req)
	if err != nil {
		return authorization{}, err
	}
	if err := o.matchCharge(ctx, req, q, charge); err != nil {
		return authorization{}, err
	}
	return authorization{amount: charge.Amount, currency: charge.Currency}, nil
}

func (o *Orchestrator) verifiedCharge(ctx context.Context, req PurchaseRequest) (*payment.ChargeSucceeded, error) {
	if req.Verified != nil {
		return req.Verified, nil
	}
	gw, err := o.payments.Get(req.Method)
	if err != nil {
		return nil, err
	}
	result, err := gw.VerifyCharge(ctx, req.Reference)
	if err != nil {
		return nil, apperrors.ErrPaymentNotConfirmed.Wrap(err)
	}
	switch r := result.(type) {
	case payment.ChargeSucceeded:
		return &r, nil
	case payment.ChargePending:
		return nil, apperrors.ErrPaymentPending
	case payment.ChargeFailed:
		return nil, apperrors.ErrPaymentNotConfirmed.Wrap(errors.New(r.Reason))
	}
	return nil, apperrors.ErrPaymentNotConfirmed
}

// matchCharge checks that a captured charge pays for this purchase.
func (o *Orchestrator) matchCharge(ctx context.Context, req PurchaseRequest, q quote, c *payment.ChargeSucceeded) error {
	md := c.Metadata
	if v, ok := md[payment.MetaUserID]; ok && v != strconv.FormatUint(uint64(req.UserID), 10) {
		return apperrors.ErrPaymentMismatch.WithMessage("payment belongs to another user")
	}
	if v, ok := md[payment.MetaPlanID]; ok && v != q.plan.ID {
		return apperrors.ErrPaymentMismatch.WithMessage("payment was made for another plan")
	}
	if v, ok := md[payment.MetaPurpose]; ok && v != payment.PurposeESim {
		return apperrors.ErrPaymentMismatch.WithMessage("payment was not made for an eSIM")
	}
	if v, ok := md[payment.MetaPoints]; ok && v != strconv.FormatInt(q.points, 10) {
		return apperrors.ErrPaymentMismatch.WithMessage("payment was made with a different points amount")
	}

	due, err := fx.Convert(ctx, o.rates, q.due, models.CurrencyUSD, c.Currency)
	if err != nil {
		return apperrors.ErrUnsupportedCurrency.Wrap(err)
	}
	if c.Amount.LessThan(due) {
		return apperrors.ErrPaymentMismatch.WithMessage("paid %s %s, %s %s due",
			c.Amount.StringFixed(2), c.Currency, due.StringFixed(2), c.Currency)
	}
	return nil
}

func (o *Orchestrator) recordExternal(ctx context.Context, reference, externalID string) error {
	ok, err := o.store.Orders().SetStage(ctx, reference, models.StageExternallyProvisioned, externalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %s is no longer pending", reference)
	}
	return nil
}

// commit applies every ledger effect of the purchase in one transaction.
func (o *Orchestrator) commit(ctx context.Context, req PurchaseRequest, q quote, auth authorization, res *provisioning.Resource) (*models.ESim, error) {
	var esim *models.ESim
	err := o.store.Atomic(ctx, func(tx repositories.Store) error {
		if q.points > 0 {
			if err := tx.Points().Spend(ctx, req.UserID, q.points); err != nil {
				if errors.Is(err, repositories.ErrInsufficientPoints) {
					return apperrors.ErrBalanceChanged.WithMessage("insufficient points (balance changed during transaction)")
				}
				return err
			}
			if err := tx.Points().AddTransaction(ctx, &models.PointsTransaction{
				UserID:      req.UserID,
				Amount:      -q.points,
				Type:        models.PointsTypePurchase,
				Description: fmt.Sprintf("Applied to eSIM purchase %s", q.plan.ID),
				Reference:   req.Reference,
			}); err != nil {
				return err
			}
		}

		if auth.amount.IsPositive() {
			if req.Method == payment.MethodWallet {
				if err := tx.Wallets().Debit(ctx, req.UserID, auth.currency, auth.amount); err != nil {
					if errors.Is(err, repositories.ErrInsufficientFunds) {
						return apperrors.ErrBalanceChanged
					}
					return err
				}
			}
			if err := tx.Transactions().Settle(ctx, &models.Transaction{
				UserID:      req.UserID,
				Amount:      auth.amount,
				Currency:    auth.currency,
				Type:        models.TransactionTypeDebit,
				Reference:   models.StringPtr(req.Reference),
				Provider:    string(req.Method),
				Description: fmt.Sprintf("eSIM purchase %s", q.plan.Name),
				Metadata:    models.JSON{"plan_id": q.plan.ID, "external_id": res.ExternalID},
			}); err != nil {
				return err
			}
		}

		esim = &models.ESim{
			UserID:         req.UserID,
			ExternalID:     res.ExternalID,
			ICCID:          res.ICCID,
			Status:         models.ESimStatusInactive,
			ActivationCode: res.ActivationCode,
			SMDPAddress:    res.SMDPAddress,
			QRCodeURL:      res.QRCodeURL,
		}
		if err := tx.ESims().Create(ctx, esim); err != nil {
			return err
		}

		ok, err := tx.Orders().MarkRecorded(ctx, req.Reference, esim.ID, res.ExternalID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s is no longer pending", req.Reference)
		}
		return nil
	})
	return esim, err
}

func (o *Orchestrator) compensate(ctx context.Context, log *zap.Logger, reference, externalID string, cause error) {
	if o.compensator != nil {
		if err := o.compensator.Compensate(ctx, reference, externalID, cause.Error()); err != nil {
			log.Warn("compensation queued for retry", zap.Error(err))
		}
	} else {
		log.Error("no compensator configured, external resource orphaned")
	}
	o.markFailed(ctx, log, reference, models.StageCompensatedFailure, cause.Error())
}

// commitFailure maps a rolled-back commit onto the error the caller sees.
// Nothing was debited.
func (o *Orchestrator) commitFailure(ctx context.Context, req PurchaseRequest, err error) (*PurchaseResult, error) {
	if errors.Is(err, repositories.ErrDuplicateReference) {
		// The reference already settled another ledger entry.
		if existing, gerr := o.store.Orders().GetByReference(ctx, req.Reference); gerr == nil &&
			existing.Status == models.OrderStatusActivated && existing.UserID == req.UserID {
			return o.replay(ctx, existing)
		}
		return nil, apperrors.ErrReferenceMismatch
	}
	if apperrors.KindOf(err) == apperrors.KindConsistency {
		return nil, err
	}
	return nil, apperrors.ErrTransactionFailed.Wrap(err)
}

func (o *Orchestrator) activate(ctx context.Context, log *zap.Logger, reference string, esim *models.ESim) bool {
	if err := o.provision.Activate(ctx, esim.ExternalID); err != nil {
		log.Warn("activation failed, eSIM recorded as inactive", zap.Error(err))
		return false
	}
	err := o.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.ESims().UpdateStatus(ctx, esim.ID, models.ESimStatusActive); err != nil {
			return err
		}
		return tx.Orders().MarkActivated(ctx, reference)
	})
	if err != nil {
		log.Error("failed to record activation", zap.Error(err))
		return false
	}
	esim.Status = models.ESimStatusActive
	return true
}

func (o *Orchestrator) replay(ctx context.Context, order *models.EsimOrder) (*PurchaseResult, error) {
	res := &PurchaseResult{
		Order:     order,
		Replayed:  true,
		Activated: order.Stage == models.StageActivated,
	}
	if order.ESimID != nil {
		esim, err := o.store.ESims().GetByID(ctx, *order.ESimID)
		if err != nil {
			return nil, apperrors.ErrTransactionFailed.Wrap(err)
		}
		res.ESim = esim
		res.Activated = esim.Status == models.ESimStatusActive
	}
	return res, nil
}

func (o *Orchestrator) setStage(ctx context.Context, log *zap.Logger, reference, stage, externalID string) {
	if _, err := o.store.Orders().SetStage(ctx, reference, stage, externalID); err != nil {
		log.Warn("failed to record order stage", zap.String("stage", stage), zap.Error(err))
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, log *zap.Logger, reference, stage, reason string) {
	if _, err := o.store.Orders().MarkFailed(ctx, reference, stage, reason); err != nil {
		log.Error("failed to mark order failed", zap.String("stage", stage), zap.Error(err))
	}
}

func (o *Orchestrator) invalidate(ctx context.Context, log *zap.Logger, userID uint) {
	if o.cache == nil {
		return
	}
	if err := o.cache.InvalidateWallet(ctx, userID); err != nil {
		log.Warn("failed to invalidate wallet cache", zap.Error(err))
	}
}

func outcome(res *PurchaseResult, err error) string {
	switch {
	case err != nil:
		return strings.ToLower(string(apperrors.KindOf(err)))
	case res != nil && res.Replayed:
		return "replayed"
	default:
		return "success"
	}
}
