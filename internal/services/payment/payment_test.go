package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

type mockIntents struct {
	mock.Mock
}

func (m *mockIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	if pi, ok := args.Get(0).(*stripe.PaymentIntent); ok {
		return pi, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(id, params)
	if pi, ok := args.Get(0).(*stripe.PaymentIntent); ok {
		return pi, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStripeGateway_CreateChargeUsesMinorUnits(t *testing.T) {
	intents := new(mockIntents)
	g := newStripeGateway(intents, nil)

	intents.On("New", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
		return *p.Amount == 1050 && *p.Currency == "usd" &&
			p.Metadata[MetaUserID] == "7" && p.Metadata[MetaPlanID] == "AIRSWITCH_NG_TEST"
	})).Return(&stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil)

	charge, err := g.CreateCharge(context.Background(), ChargeRequest{
		Amount:   decimal.RequireFromString("10.50"),
		Currency: "USD",
		UserID:   7,
		Metadata: map[string]string{MetaPlanID: "AIRSWITCH_NG_TEST"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", charge.Reference)
	assert.Equal(t, "pi_1_secret", charge.ClientHandle)
	intents.AssertExpectations(t)
}

func TestStripeGateway_VerifyCharge(t *testing.T) {
	tests := []struct {
		name   string
		intent *stripe.PaymentIntent
		check  func(t *testing.T, r ChargeResult)
	}{
		{
			name: "succeeded",
			intent: &stripe.PaymentIntent{
				ID: "pi_ok", Status: stripe.PaymentIntentStatusSucceeded,
				AmountReceived: 300, Currency: "usd",
				Metadata: map[string]string{MetaUserID: "1"},
			},
			check: func(t *testing.T, r ChargeResult) {
				ok, is := r.(ChargeSucceeded)
				require.True(t, is)
				assert.Equal(t, "3", ok.Amount.String())
				assert.Equal(t, "USD", ok.Currency)
				assert.Equal(t, "1", ok.Metadata[MetaUserID])
			},
		},
		{
			name:   "processing",
			intent: &stripe.PaymentIntent{ID: "pi_p", Status: stripe.PaymentIntentStatusProcessing},
			check: func(t *testing.T, r ChargeResult) {
				assert.IsType(t, ChargePending{}, r)
			},
		},
		{
			name:   "fresh intent awaiting payment method",
			intent: &stripe.PaymentIntent{ID: "pi_new", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
			check: func(t *testing.T, r ChargeResult) {
				assert.IsType(t, ChargePending{}, r)
			},
		},
		{
			name: "declined",
			intent: &stripe.PaymentIntent{
				ID: "pi_d", Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{Msg: "card declined"},
			},
			check: func(t *testing.T, r ChargeResult) {
				failed, is := r.(ChargeFailed)
				require.True(t, is)
				assert.Equal(t, "card declined", failed.Reason)
			},
		},
		{
			name:   "canceled",
			intent: &stripe.PaymentIntent{ID: "pi_c", Status: stripe.PaymentIntentStatusCanceled},
			check: func(t *testing.T, r ChargeResult) {
				assert.IsType(t, ChargeFailed{}, r)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := new(mockIntents)
			intents.On("Get", tt.intent.ID, mock.Anything).Return(tt.intent, nil)
			r, err := newStripeGateway(intents, nil).VerifyCharge(context.Background(), tt.intent.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.intent.ID, r.ChargeReference())
			tt.check(t, r)
		})
	}
}

func TestStripeGateway_ErrorsAreGatewayErrors(t *testing.T) {
	intents := new(mockIntents)
	intents.On("Get", "pi_x", mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := newStripeGateway(intents, nil).VerifyCharge(context.Background(), "pi_x")
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))
}

func newPaystackServer(t *testing.T, handler http.HandlerFunc) *PaystackGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystackGateway(config.PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL}, nil)
}

func TestPaystackGateway_CreateCharge(t *testing.T) {
	g := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.EqualValues(t, 450000, body["amount"])
		assert.Equal(t, "NGN", body["currency"])
		md := body["metadata"].(map[string]interface{})
		assert.Equal(t, "esim", md[MetaPurpose])
		assert.Equal(t, "3", md[MetaUserID])

		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ps_ref_1"}}`))
	})

	charge, err := g.CreateCharge(context.Background(), ChargeRequest{
		Amount:   decimal.NewFromInt(4500),
		Currency: "NGN",
		UserID:   3,
		Email:    "user@example.com",
		Metadata: map[string]string{MetaPurpose: PurposeESim},
	})
	require.NoError(t, err)
	assert.Equal(t, "ps_ref_1", charge.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc", charge.ClientHandle)
}

func TestPaystackGateway_VerifyCharge(t *testing.T) {
	g := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transaction/verify/ps_ok":
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"success","reference":"ps_ok","amount":450000,"currency":"NGN","metadata":{"custom_fields":[{"variable_name":"plan_id","value":"AIRSWITCH_NG_TEST"}],"user_id":3}}}`))
		case "/transaction/verify/ps_failed":
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"failed","reference":"ps_failed","gateway_response":"Declined"}}`))
		case "/transaction/verify/ps_wait":
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"ongoing","reference":"ps_wait"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		}
	})
	ctx := context.Background()

	r, err := g.VerifyCharge(ctx, "ps_ok")
	require.NoError(t, err)
	ok, is := r.(ChargeSucceeded)
	require.True(t, is)
	assert.Equal(t, "4500", ok.Amount.String())
	assert.Equal(t, "3", ok.Metadata[MetaUserID])
	assert.Equal(t, "AIRSWITCH_NG_TEST", ok.Metadata[MetaPlanID])

	r, err = g.VerifyCharge(ctx, "ps_failed")
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed{Reference: "ps_failed", Reason: "Declined"}, r)

	r, err = g.VerifyCharge(ctx, "ps_wait")
	require.NoError(t, err)
	assert.IsType(t, ChargePending{}, r)

	_, err = g.VerifyCharge(ctx, "missing")
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))
}

func TestParsePaystackMetadata_EncodedString(t *testing.T) {
	md := ParsePaystackMetadata(json.RawMessage(`"{\"userId\":\"9\",\"purpose\":\"topup\"}"`))
	assert.Equal(t, "9", md[MetaUserID])
	assert.Equal(t, PurposeTopUp, md[MetaPurpose])

	assert.Empty(t, ParsePaystackMetadata(json.RawMessage(`""`)))
	assert.Empty(t, ParsePaystackMetadata(nil))
}

func TestRegistry(t *testing.T) {
	stripeGW := newStripeGateway(new(mockIntents), nil)
	r := NewRegistry(stripeGW, nil)

	g, err := r.Get(MethodStripe)
	require.NoError(t, err)
	assert.Same(t, stripeGW, g)

	_, err = r.Get(MethodPaystack)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedMethod)

	m, err := ParseMethod(" Paystack ")
	require.NoError(t, err)
	assert.Equal(t, MethodPaystack, m)
	_, err = ParseMethod("cash")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedMethod)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), ToMinor(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1), ToMinor(decimal.RequireFromString("0.005")))
	assert.Equal(t, "19.99", FromMinor(1999).String())
}
