package payment

import (
	"context"
	"strconv"
	"strings"

	apperrors "airswitch/internal/errors"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// intentAPI is the slice of the Stripe PaymentIntents client we call.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway captures card payments through PaymentIntents.
type StripeGateway struct {
	intents intentAPI
	log     *zap.Logger
}

func NewStripeGateway(secretKey string, log *zap.Logger) *StripeGateway {
	sc := client.New(secretKey, nil)
	return newStripeGateway(sc.PaymentIntents, log)
}

func newStripeGateway(intents intentAPI, log *zap.Logger) *StripeGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &StripeGateway{intents: intents, log: log.Named("stripe")}
}

func (g *StripeGateway) Name() string { return string(MethodStripe) }

func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(ToMinor(req.Amount)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	md := cloneMetadata(req.Metadata)
	md[MetaUserID] = strconv.FormatUint(uint64(req.UserID), 10)
	for k, v := range md {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		g.log.Error("failed to create payment intent",
			zap.Uint("user_id", req.UserID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, apperrors.Gateway("stripe", "create charge", err)
	}

	return &Charge{
		Provider:     g.Name(),
		Reference:    pi.ID,
		ClientHandle: pi.ClientSecret,
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
	}, nil
}

func (g *StripeGateway) VerifyCharge(ctx context.Context, reference string) (ChargeResult, error) {
	if reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}
	pi, err := g.intents.Get(reference, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		g.log.Warn("failed to retrieve payment intent", zap.String("reference", reference), zap.Error(err))
		return nil, apperrors.Gateway("stripe", "verify charge", err)
	}
	return IntentResult(pi), nil
}

// IntentResult classifies a PaymentIntent, whether fetched or taken from a
// webhook event.
func IntentResult(pi *stripe.PaymentIntent) ChargeResult {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		minor := pi.AmountReceived
		if minor == 0 {
			minor = pi.Amount
		}
		return ChargeSucceeded{
			Reference: pi.ID,
			Amount:    FromMinor(minor),
			Currency:  strings.ToUpper(string(pi.Currency)),
			Metadata:  cloneMetadata(pi.Metadata),
		}
	case stripe.PaymentIntentStatusCanceled:
		return ChargeFailed{Reference: pi.ID, Reason: "payment intent canceled"}
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A new intent also sits here; only an attempted payment makes it a failure.
		if pi.LastPaymentError != nil {
			return ChargeFailed{Reference: pi.ID, Reason: pi.LastPaymentError.Msg}
		}
		return ChargePending{Reference: pi.ID, Status: string(pi.Status)}
	default:
		return ChargePending{Reference: pi.ID, Status: string(pi.Status)}
	}
}
