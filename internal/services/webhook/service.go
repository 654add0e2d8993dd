// Package webhook authenticates and routes inbound provider events. Payment
// events feed the purchase orchestrator or wallet funding; carrier events
// update messages, calls and SIM status.
package webhook

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/metrics"
	"airswitch/internal/repositories"
	"airswitch/internal/services/esim"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/wallet"

	"github.com/stripe/stripe-go/v72"
	stripewebhook "github.com/stripe/stripe-go/v72/webhook"
	"go.uber.org/zap"
)

// Outcome says what happened to an accepted event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeReplayed  Outcome = "replayed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

type Purchaser interface {
	Purchase(ctx context.Context, req esim.PurchaseRequest) (*esim.PurchaseResult, error)
}

type Funder interface {
	FundCharge(ctx context.Context, userID uint, method payment.Method, charge payment.ChargeSucceeded) (*wallet.FundResult, error)
}

type StatusMirror interface {
	MirrorStatus(ctx context.Context, externalID, providerStatus string) (bool, error)
}

// NumberBook tracks carrier numbers held by users.
type NumberBook interface {
	SyncNumber(ctx context.Context, phoneNumber, orderID, orderStatus string) (bool, error)
	Owner(ctx context.Context, phoneNumber string) (*uint, error)
}

type Deps struct {
	Store           repositories.Store
	Purchases       Purchaser
	Wallets         Funder
	ESims           StatusMirror
	Numbers         NumberBook
	StripeSecret    string
	PaystackSecret  string
	TelnyxPublicKey string
	Metrics         metrics.Collector
	Logger          *zap.Logger
}

type Service struct {
	store          repositories.Store
	purchases      Purchaser
	wallets        Funder
	esims          StatusMirror
	numbers        NumberBook
	stripeSecret   string
	paystackSecret string
	telnyxKey      ed25519.PublicKey
	metrics        metrics.Collector
	log            *zap.Logger
	now            func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	key, err := ParseTelnyxKey(d.TelnyxPublicKey)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:          d.Store,
		purchases:      d.Purchases,
		wallets:        d.Wallets,
		esims:          d.ESims,
		numbers:        d.Numbers,
		stripeSecret:   d.StripeSecret,
		paystackSecret: d.PaystackSecret,
		telnyxKey:      key,
		metrics:        metrics.OrNoop(d.Metrics),
		log:            d.Logger.Named("webhook"),
		now:            time.Now,
	}, nil
}

// HandleStripe verifies the Stripe-Signature header and routes payment
// intent events. A returned error is either ErrInvalidSignature or a
// transient failure the provider should redeliver.
func (s *Service) HandleStripe(ctx context.Context, payload []byte, signature string) (out Outcome, err error) {
	defer func() { s.record("stripe", out, err) }()

	if s.stripeSecret == "" {
		s.log.Warn("stripe webhook secret not configured, rejecting event")
		return "", apperrors.ErrInvalidSignature
	}
	event, err := stripewebhook.ConstructEvent(payload, signature, s.stripeSecret)
	if err != nil {
		s.log.Warn("stripe webhook rejected", zap.Error(err))
		return "", apperrors.ErrInvalidSignature
	}
	log := s.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Warn("malformed payment intent", zap.Error(err))
			return OutcomeIgnored, nil
		}
		charge, ok := payment.IntentResult(&pi).(payment.ChargeSucceeded)
		if !ok {
			log.Warn("succeeded event for an intent that is not succeeded", zap.String("status", string(pi.Status)))
			return OutcomeIgnored, nil
		}
		return s.routeCharge(ctx, log, payment.MethodStripe, charge)

	case "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			return OutcomeIgnored, nil
		}
		return s.markFailed(ctx, log, pi.ID)
	}

	log.Debug("unhandled stripe event")
	return OutcomeIgnored, nil
}

type paystackEvent struct {
	Event string                      `json:"event"`
	Data  payment.PaystackTransaction `json:"data"`
}

// HandlePaystack verifies x-paystack-signature and routes charge events.
func (s *Service) HandlePaystack(ctx context.Context, payload []byte, signature string) (out Outcome, err error) {
	defer func() { s.record("paystack", out, err) }()

	if err := verifyPaystack(s.paystackSecret, payload, signature); err != nil {
		s.log.Warn("paystack webhook rejected", zap.Error(err))
		return "", apperrors.ErrInvalidSignature
	}

	var event paystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.log.Warn("malformed paystack event", zap.Error(err))
		return OutcomeIgnored, nil
	}
	log := s.log.With(zap.String("event_type", event.Event), zap.String("reference", event.Data.Reference))

	if event.Event != "charge.success" {
		log.Debug("unhandled paystack event")
		return OutcomeIgnored, nil
	}
	switch r := event.Data.Result().(type) {
	case payment.ChargeSucceeded:
		return s.routeCharge(ctx, log, payment.MethodPaystack, r)
	case payment.ChargeFailed:
		return s.markFailed(ctx, log, r.Reference)
	}
	return OutcomeIgnored, nil
}

// routeCharge hands a verified charge to whichever flow created it, judged by
// the metadata written at checkout.
func (s *Service) routeCharge(ctx context.Context, log *zap.Logger, method payment.Method, charge payment.ChargeSucceeded) (Outcome, error) {
	md := charge.Metadata
	log = log.With(zap.String("reference", charge.Reference))

	userID, err := strconv.ParseUint(md[payment.MetaUserID], 10, 64)
	if err != nil || userID == 0 {
		log.Warn("charge carries no user id, ignoring")
		return OutcomeIgnored, nil
	}

	purpose := md[payment.MetaPurpose]
	if purpose == "" && md[payment.MetaPlanID] != "" {
		purpose = payment.PurposeESim
	}

	switch purpose {
	case payment.PurposeESim:
		planID := md[payment.MetaPlanID]
		if planID == "" {
			log.Warn("eSIM charge carries no plan id, ignoring")
			return OutcomeIgnored, nil
		}
		var points int64
		if v := md[payment.MetaPoints]; v != "" {
			if points, err = strconv.ParseInt(v, 10, 64); err != nil {
				log.Warn("charge carries malformed points", zap.String("points", v))
				return OutcomeRejected, nil
			}
		}
		res, err := s.purchases.Purchase(ctx, esim.PurchaseRequest{
			UserID:      uint(userID),
			PlanID:      planID,
			Method:      method,
			Reference:   charge.Reference,
			PointsToUse: points,
			Verified:    &charge,
		})
		if err != nil {
			return s.failure(log, "purchase", err)
		}
		if res.Replayed {
			return OutcomeReplayed, nil
		}
		log.Info("eSIM provisioned from webhook", zap.Uint("order_id", res.Order.ID))
		return OutcomeProcessed, nil

	case payment.PurposeTopUp:
		res, err := s.wallets.FundCharge(ctx, uint(userID), method, charge)
		if err != nil {
			return s.failure(log, "wallet funding", err)
		}
		if res.Replayed {
			return OutcomeReplayed, nil
		}
		log.Info("wallet funded from webhook", zap.Uint("user_id", uint(userID)))
		return OutcomeProcessed, nil
	}

	log.Warn("charge has unknown purpose, ignoring", zap.String("purpose", purpose))
	return OutcomeIgnored, nil
}

// failure acknowledges permanent rejections and surfaces transient ones so
// the provider redelivers.
func (s *Service) failure(log *zap.Logger, what string, err error) (Outcome, error) {
	if apperrors.Retryable(err) {
		log.Warn(what+" failed, asking for redelivery", zap.Error(err))
		return "", err
	}
	log.Warn(what+" rejected", zap.Error(err))
	return OutcomeRejected, nil
}

func (s *Service) markFailed(ctx context.Context, log *zap.Logger, reference string) (Outcome, error) {
	changed, err := s.store.Transactions().MarkFailed(ctx, reference)
	if err != nil {
		log.Error("failed to mark transaction failed", zap.Error(err))
		return "", apperrors.ErrInternal.Wrap(err)
	}
	if !changed {
		return OutcomeIgnored, nil
	}
	log.Info("pending transaction marked failed")
	return OutcomeProcessed, nil
}

func (s *Service) record(provider string, out Outcome, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidSignature):
		s.metrics.Webhook(provider, "invalid_signature")
	case err != nil:
		s.metrics.Webhook(provider, "error")
	default:
		s.metrics.Webhook(provider, strings.ToLower(string(out)))
	}
}
