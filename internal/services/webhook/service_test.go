package webhook

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/services/esim"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/telecom"
	"airswitch/internal/services/wallet"
	"airswitch/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

const (
	stripeSecret   = "whsec_test"
	paystackSecret = "sk_test_paystack"
)

type mockPurchaser struct{ mock.Mock }

func (m *mockPurchaser) Purchase(ctx context.Context, req esim.PurchaseRequest) (*esim.PurchaseResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*esim.PurchaseResult)
	return res, args.Error(1)
}

type mockFunder struct{ mock.Mock }

func (m *mockFunder) FundCharge(ctx context.Context, userID uint, method payment.Method, c payment.ChargeSucceeded) (*wallet.FundResult, error) {
	args := m.Called(ctx, userID, method, c)
	res, _ := args.Get(0).(*wallet.FundResult)
	return res, args.Error(1)
}

type mockMirror struct{ mock.Mock }

func (m *mockMirror) MirrorStatus(ctx context.Context, externalID, status string) (bool, error) {
	args := m.Called(ctx, externalID, status)
	return args.Bool(0), args.Error(1)
}

type webhookCounter struct {
	mu   sync.Mutex
	seen []string
}

func (c *webhookCounter) Purchase(string, string, time.Duration) {}
func (c *webhookCounter) LedgerOp(string, string)                {}
func (c *webhookCounter) Compensation(string)                    {}
func (c *webhookCounter) Webhook(provider, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, provider+":"+outcome)
}

type harness struct {
	store     *testutil.MemStore
	purchases *mockPurchaser
	funder    *mockFunder
	mirror    *mockMirror
	numbers   *telecom.Service
	counter   *webhookCounter
	telnyxKey ed25519.PrivateKey
	svc       *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store := testutil.NewMemStore()
	carrier := &testutil.FakeCarrier{OrderStatus: "pending"}
	h := &harness{
		store:     store,
		purchases: &mockPurchaser{},
		funder:    &mockFunder{},
		mirror:    &mockMirror{},
		numbers:   telecom.NewService(store, carrier, carrier, nil),
		counter:   &webhookCounter{},
		telnyxKey: priv,
	}
	h.svc, err = NewService(Deps{
		Store:           h.store,
		Purchases:       h.purchases,
		Wallets:         h.funder,
		ESims:           h.mirror,
		Numbers:         h.numbers,
		StripeSecret:    stripeSecret,
		PaystackSecret:  paystackSecret,
		TelnyxPublicKey: base64.StdEncoding.EncodeToString(pub),
		Metrics:         h.counter,
	})
	require.NoError(t, err)
	return h
}

func stripeSignature(payload []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, object))
}

func paystackSignature(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *harness) telnyx(payload []byte, at time.Time) (string, string) {
	ts := strconv.FormatInt(at.Unix(), 10)
	sig := ed25519.Sign(h.telnyxKey, []byte(ts+"|"+string(payload)))
	return base64.StdEncoding.EncodeToString(sig), ts
}

func TestStripe_SucceededIntentProvisionsESim(t *testing.T) {
	h := newHarness(t)
	payload := stripeEvent("payment_intent.succeeded", `{
		"id":"pi_esim_1","object":"payment_intent","amount":300,"amount_received":300,
		"currency":"usd","status":"succeeded",
		"metadata":{"userId":"7","planId":"AIRSWITCH_NG_TEST","purpose":"esim","points":"0"}}`)

	h.purchases.On("Purchase", mock.Anything, mock.MatchedBy(func(r esim.PurchaseRequest) bool {
		return r.UserID == 7 && r.PlanID == "AIRSWITCH_NG_TEST" && r.Method == payment.MethodStripe &&
			r.Reference == "pi_esim_1" && r.Verified != nil &&
			r.Verified.Amount.Equal(decimal.NewFromInt(3)) && r.Verified.Currency == "USD"
	})).Return(&esim.PurchaseResult{Order: &models.EsimOrder{ID: 1}}, nil).Once()

	out, err := h.svc.HandleStripe(context.Background(), payload, stripeSignature(payload, stripeSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
	h.purchases.AssertExpectations(t)
	assert.Equal(t, []string{"stripe:processed"}, h.counter.seen)
}

func TestStripe_BadSignatureHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	payload := stripeEvent("payment_intent.succeeded", `{"id":"pi_x","object":"payment_intent","status":"succeeded",
		"amount":300,"currency":"usd","metadata":{"userId":"7","planId":"AIRSWITCH_NG_TEST"}}`)

	_, err := h.svc.HandleStripe(context.Background(), payload, stripeSignature(payload, "whsec_wrong", time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))

	_, err = h.svc.HandleStripe(context.Background(), payload, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	h.purchases.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"stripe:invalid_signature", "stripe:invalid_signature"}, h.counter.seen)
}

func TestStripe_TopUpIntentFundsWallet(t *testing.T) {
	h := newHarness(t)
	payload := stripeEvent("payment_intent.succeeded", `{
		"id":"pi_topup_1","object":"payment_intent","amount":2000,"amount_received":2000,
		"currency":"usd","status":"succeeded","metadata":{"userId":"3","purpose":"topup"}}`)

	h.funder.On("FundCharge", mock.Anything, uint(3), payment.MethodStripe, mock.MatchedBy(func(c payment.ChargeSucceeded) bool {
		return c.Reference == "pi_topup_1" && c.Amount.Equal(decimal.NewFromInt(20))
	})).Return(&wallet.FundResult{Replayed: true}, nil).Once()

	out, err := h.svc.HandleStripe(context.Background(), payload, stripeSignature(payload, stripeSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, out)
	h.funder.AssertExpectations(t)
	h.purchases.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestStripe_PaymentFailedMarksPendingTransaction(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("hook@example.com", "0", "0")
	require.NoError(t, h.store.Transactions().Create(context.Background(), &models.Transaction{
		UserID:    userID,
		Amount:    decimal.NewFromInt(3),
		Currency:  models.CurrencyUSD,
		Type:      models.TransactionTypeDebit,
		Status:    models.TransactionStatusPending,
		Reference: models.StringPtr("pi_fail_1"),
		Provider:  "stripe",
	}))
	payload := stripeEvent("payment_intent.payment_failed",
		`{"id":"pi_fail_1","object":"payment_intent","status":"requires_payment_method","amount":300,"currency":"usd"}`)
	sig := stripeSignature(payload, stripeSecret, time.Now())

	out, err := h.svc.HandleStripe(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
	assert.Equal(t, models.TransactionStatusFailed, h.store.AllTransactions()[0].Status)

	out, err = h.svc.HandleStripe(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestStripe_FailureClassification(t *testing.T) {
	h := newHarness(t)
	payload := stripeEvent("payment_intent.succeeded", `{
		"id":"pi_esim_2","object":"payment_intent","amount":300,"amount_received":300,
		"currency":"usd","status":"succeeded","metadata":{"userId":"7","planId":"AIRSWITCH_NG_TEST"}}`)
	sig := stripeSignature(payload, stripeSecret, time.Now())

	h.purchases.On("Purchase", mock.Anything, mock.Anything).Return(nil, apperrors.ErrProvisioningUnknown).Once()
	_, err := h.svc.HandleStripe(context.Background(), payload, sig)
	assert.ErrorIs(t, err, apperrors.ErrProvisioningUnknown)

	h.purchases.On("Purchase", mock.Anything, mock.Anything).Return(nil, apperrors.ErrPaymentMismatch).Once()
	out, err := h.svc.HandleStripe(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out)

	assert.Equal(t, []string{"stripe:error", "stripe:rejected"}, h.counter.seen)
}

func TestStripe_UnroutableEventsAreAcknowledged(t *testing.T) {
	h := newHarness(t)
	for _, payload := range [][]byte{
		stripeEvent("customer.created", `{"id":"cus_1","object":"customer"}`),
		stripeEvent("payment_intent.succeeded", `{"id":"pi_anon","object":"payment_intent","status":"succeeded","amount":100,"currency":"usd"}`),
		stripeEvent("payment_intent.succeeded", `{"id":"pi_odd","object":"payment_intent","status":"succeeded","amount":100,"currency":"usd","metadata":{"userId":"1","purpose":"donation"}}`),
	} {
		out, err := h.svc.HandleStripe(context.Background(), payload, stripeSignature(payload, stripeSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, out)
	}
	h.purchases.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestPaystack_ChargeSuccessUsesCustomFields(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"event":"charge.success","data":{
		"id":99,"status":"success","reference":"ps_ref_1","amount":450000,"currency":"NGN",
		"metadata":{"custom_fields":[
			{"display_name":"User","variable_name":"user_id","value":"12"},
			{"display_name":"Plan","variable_name":"plan_id","value":"AIRSWITCH_NG_TEST"}]}}}`)

	h.purchases.On("Purchase", mock.Anything, mock.MatchedBy(func(r esim.PurchaseRequest) bool {
		return r.UserID == 12 && r.PlanID == "AIRSWITCH_NG_TEST" && r.Method == payment.MethodPaystack &&
			r.Reference == "ps_ref_1" && r.Verified.Amount.Equal(decimal.NewFromInt(4500)) &&
			r.Verified.Currency == models.CurrencyNGN
	})).Return(&esim.PurchaseResult{Order: &models.EsimOrder{ID: 2}, Replayed: true}, nil).Once()

	out, err := h.svc.HandlePaystack(context.Background(), payload, paystackSignature(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, out)
	h.purchases.AssertExpectations(t)
}

func TestPaystack_RejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_2","status":"success","amount":100,"currency":"NGN"}}`)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] = 'X'
	_, err := h.svc.HandlePaystack(context.Background(), tampered, paystackSignature(payload))
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	_, err = h.svc.HandlePaystack(context.Background(), payload, "not-hex")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	h.purchases.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestTelnyx_MessageIsStoredOnce(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"data":{"id":"evt_m1","event_type":"message.received","occurred_at":"2026-01-02T10:00:00Z",
		"payload":{"id":"msg_1","text":"hello","from":{"phone_number":"+2348000000001"},
		"to":[{"phone_number":"+2348000000002"}]}}}`)
	ctx := context.Background()

	sig, ts := h.telnyx(payload, time.Now())
	out, err := h.svc.HandleTelnyx(ctx, payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	out, err = h.svc.HandleTelnyx(ctx, payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, out)

	msgs := h.store.AllMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "+2348000000002", msgs[0].To)
	assert.Equal(t, "inbound", msgs[0].Direction)
}

func TestTelnyx_InboundMessageIsFiledUnderNumberOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.store.SeedUser("sms@example.com", "0", "0")
	_, err := h.numbers.PurchaseNumber(ctx, userID, "+15550003333")
	require.NoError(t, err)
	_, err = h.numbers.SyncNumber(ctx, "+15550003333", "ord_1", "success")
	require.NoError(t, err)

	payload := []byte(`{"data":{"id":"evt_m3","event_type":"message.received",
		"payload":{"id":"msg_in_1","text":"ping","from":{"phone_number":"+15550004444"},
		"to":[{"phone_number":"+15550003333"}]}}}`)
	sig, ts := h.telnyx(payload, time.Now())
	out, err := h.svc.HandleTelnyx(ctx, payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	page, err := h.numbers.Messages(ctx, userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "ping", page.Messages[0].Text)
	assert.Equal(t, models.DirectionInbound, page.Messages[0].Direction)
}

func TestTelnyx_MessageStatusIsUpdated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.Telecom().SaveMessage(ctx, &models.Message{ExternalID: "msg_out_1", Direction: models.DirectionOutbound, Status: "queued"})
	require.NoError(t, err)

	payload := []byte(`{"data":{"id":"evt_f1","event_type":"message.finalized",
		"payload":{"id":"msg_out_1","to":[{"phone_number":"+15550005555","status":"delivered"}]}}}`)
	sig, ts := h.telnyx(payload, time.Now())
	out, err := h.svc.HandleTelnyx(ctx, payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
	assert.Equal(t, "delivered", h.store.AllMessages()[0].Status)

	unknown := []byte(`{"data":{"id":"evt_f2","event_type":"message.sent",
		"payload":{"id":"msg_other","to":[{"phone_number":"+15550005555","status":"sent"}]}}}`)
	sig, ts = h.telnyx(unknown, time.Now())
	out, err = h.svc.HandleTelnyx(ctx, unknown, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestTelnyx_NumberOrderCompletesPendingNumber(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.store.SeedUser("order@example.com", "0", "0")
	res, err := h.numbers.PurchaseNumber(ctx, userID, "+15550006666")
	require.NoError(t, err)
	require.Equal(t, models.NumberStatusPending, res.Number.Status)

	payload := []byte(`{"data":{"id":"evt_n1","event_type":"number_order.complete",
		"payload":{"id":"ord_1","status":"success","phone_numbers":[{"phone_number":"+15550006666","status":"success"}]}}}`)
	sig, ts := h.telnyx(payload, time.Now())
	out, err := h.svc.HandleTelnyx(ctx, payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	numbers, err := h.numbers.Numbers(ctx, userID)
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, models.NumberStatusActive, numbers[0].Status)

	stray := []byte(`{"data":{"id":"evt_n2","event_type":"number_order.complete",
		"payload":{"id":"ord_9","status":"success","phone_numbers":[{"phone_number":"+15550007777"}]}}}`)
	sig, ts = h.telnyx(stray, time.Now())
	out, err = h.svc.HandleTelnyx(ctx, stray, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestTelnyx_CallLifecycleUpserts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	send := func(eventType, extra string) {
		payload := []byte(fmt.Sprintf(`{"data":{"id":"evt_%s","event_type":%q,"occurred_at":"2026-01-02T10:00:00Z",
			"payload":{"call_control_id":"cc_1","from":"+1555","to":"+1666"%s}}}`, eventType, eventType, extra))
		sig, ts := h.telnyx(payload, time.Now())
		out, err := h.svc.HandleTelnyx(ctx, payload, sig, ts)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, out)
	}

	send("call.initiated", "")
	send("call.answered", "")
	send("call.hangup", `,"hangup_cause":"normal_clearing"`)

	calls := h.store.AllCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hangup", calls[0].Status)
	assert.Equal(t, "normal_clearing", calls[0].HangupCause)
	assert.NotNil(t, calls[0].StartedAt)
	assert.NotNil(t, calls[0].AnsweredAt)
	assert.NotNil(t, calls[0].EndedAt)
}

func TestTelnyx_SimStatusIsMirrored(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"data":{"id":"evt_s1","event_type":"sim_card.status.updated",
		"payload":{"id":"sim_ext_1","status":{"value":"disabled","reason":"user request"}}}}`)
	h.mirror.On("MirrorStatus", mock.Anything, "sim_ext_1", "disabled").Return(true, nil).Once()

	sig, ts := h.telnyx(payload, time.Now())
	out, err := h.svc.HandleTelnyx(context.Background(), payload, sig, ts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
	h.mirror.AssertExpectations(t)
}

func TestTelnyx_RejectsForgedAndStaleEvents(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"data":{"id":"evt_m2","event_type":"message.received","payload":{"id":"msg_2","text":"x"}}}`)
	ctx := context.Background()

	_, otherKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	forged := base64.StdEncoding.EncodeToString(ed25519.Sign(otherKey, []byte(ts+"|"+string(payload))))
	_, err = h.svc.HandleTelnyx(ctx, payload, forged, ts)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	sig, staleTS := h.telnyx(payload, time.Now().Add(-time.Hour))
	_, err = h.svc.HandleTelnyx(ctx, payload, sig, staleTS)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	assert.Empty(t, h.store.AllMessages())
}

func TestTelnyx_UnsignedAcceptedWithoutKey(t *testing.T) {
	store := testutil.NewMemStore()
	svc, err := NewService(Deps{Store: store})
	require.NoError(t, err)

	payload := []byte(`{"data":{"event_type":"message.received","payload":{"id":"msg_3","text":"hi"}}}`)
	out, err := svc.HandleTelnyx(context.Background(), payload, "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	out, err = svc.HandleTelnyx(context.Background(), []byte(`{"data":{"event_type":"number_order.complete"}}`), "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestNewService_RejectsBadTelnyxKey(t *testing.T) {
	_, err := NewService(Deps{TelnyxPublicKey: "c2hvcnQ="})
	assert.Error(t, err)
}
