package esim

import (
	"context"
	"fmt"
	"strconv"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/fx"
	"airswitch/internal/models"
	"airswitch/internal/services/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutRequest struct {
	UserID      uint
	Email       string
	PlanID      string
	Method      payment.Method
	PointsToUse int64
}

type CheckoutResult struct {
	Charge      *payment.Charge `json:"charge"`
	Plan        Plan            `json:"plan"`
	PointsUsed  int64           `json:"points_used"`
	PointsValue decimal.Decimal `json:"points_value"`
}

// chargeCurrency is the currency each processor is charged in.
func chargeCurrency(m payment.Method) string {
	if m == payment.MethodPaystack {
		return models.CurrencyNGN
	}
	return models.CurrencyUSD
}

// Checkout creates a card or bank charge for a plan. The charge metadata
// carries everything Purchase needs, so the webhook can complete the order
// on its own.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Method == payment.MethodWallet {
		return nil, apperrors.Validation("wallet purchases do not need a checkout")
	}
	gw, err := o.payments.Get(req.Method)
	if err != nil {
		return nil, err
	}
	q, err := o.quote(req.PlanID, req.PointsToUse)
	if err != nil {
		return nil, err
	}
	if !q.due.IsPositive() {
		return nil, apperrors.Validation("nothing to pay; purchase with points directly")
	}
	if q.points > 0 {
		up, err := o.store.Points().GetOrCreate(ctx, req.UserID)
		if err != nil {
			return nil, apperrors.ErrInternal.Wrap(err)
		}
		if up.AvailablePoints < q.points {
			return nil, apperrors.ErrInsufficientPoints
		}
	}

	currency := chargeCurrency(req.Method)
	amount, err := fx.Convert(ctx, o.rates, q.due, models.CurrencyUSD, currency)
	if err != nil {
		return nil, apperrors.ErrUnsupportedCurrency.Wrap(err)
	}

	charge, err := gw.CreateCharge(ctx, payment.ChargeRequest{
		Amount:   amount,
		Currency: currency,
		UserID:   req.UserID,
		Email:    req.Email,
		Metadata: map[string]string{
			payment.MetaPlanID:  q.plan.ID,
			payment.MetaPurpose: payment.PurposeESim,
			payment.MetaPoints:  strconv.FormatInt(q.points, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	pending := &models.Transaction{
		UserID:      req.UserID,
		Amount:      amount,
		Currency:    currency,
		Type:        models.TransactionTypeDebit,
		Status:      models.TransactionStatusPending,
		Reference:   models.StringPtr(charge.Reference),
		Provider:    gw.Name(),
		Description: fmt.Sprintf("eSIM purchase %s", q.plan.Name),
		Metadata:    models.JSON{"plan_id": q.plan.ID},
	}
	if err := o.store.Transactions().Create(ctx, pending); err != nil {
		// Settle inserts the row on completion if it is missing.
		o.log.Warn("failed to record pending charge",
			zap.String("reference", charge.Reference),
			zap.Error(err))
	}

	return &CheckoutResult{
		Charge:      charge,
		Plan:        q.plan,
		PointsUsed:  q.points,
		PointsValue: q.pointsValue,
	}, nil
}
