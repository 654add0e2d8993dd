package esim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/fx"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/compensation"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/provisioning"
	"airswitch/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *testutil.MemStore
	prov     *testutil.FakeProvisioner
	stripe   *testutil.FakeGateway
	paystack *testutil.FakeGateway
	cache    *testutil.FakeCache
	orch     *Orchestrator
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    testutil.NewMemStore(),
		prov:     &testutil.FakeProvisioner{},
		stripe:   testutil.NewFakeGateway(payment.MethodStripe),
		paystack: testutil.NewFakeGateway(payment.MethodPaystack),
		cache:    &testutil.FakeCache{},
	}
	catalog := NewCatalog(append(DefaultCatalog().List(), Plan{
		ID:       "PLAN_10",
		Name:     "Test 10",
		Price:    decimal.NewFromInt(10),
		Currency: models.CurrencyUSD,
	})...)

	h.orch = NewOrchestrator(OrchestratorDeps{
		Store:        h.store,
		Payments:     payment.NewRegistry(h.stripe, h.paystack),
		Provisioning: h.prov,
		Compensator:  compensation.NewService(h.store, h.prov, config.CompensationConfig{}, nil, nil),
		Rates:        fx.NewFixedNGN(decimal.NewFromInt(1500)),
		Catalog:      catalog,
		Cache:        h.cache,
		PointsPerUSD: 100,
	})
	h.svc = NewService(h.store, h.prov, catalog, nil)
	return h
}

func walletPurchase(userID uint, planID, ref string) PurchaseRequest {
	return PurchaseRequest{UserID: userID, PlanID: planID, Method: payment.MethodWallet, Reference: ref}
}

func TestPurchase_WalletPaysFullPrice(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("a@example.com", "10.00", "0")

	res, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.True(t, res.Activated)

	w := h.store.Wallet(userID)
	assert.True(t, w.BalanceUSD.IsZero(), "balance is %s", w.BalanceUSD)

	txns := h.store.AllTransactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeDebit, txns[0].Type)
	assert.Equal(t, models.TransactionStatusSuccess, txns[0].Status)
	assert.Equal(t, "10", txns[0].Amount.String())
	assert.Equal(t, models.CurrencyUSD, txns[0].Currency)
	assert.Equal(t, "wal_1", txns[0].Ref())

	esims := h.store.AllESims()
	require.Len(t, esims, 1)
	assert.Equal(t, models.ESimStatusActive, esims[0].Status)
	assert.Equal(t, "LPA:1$rsp.telnyx.com$"+esims[0].ICCID, esims[0].ActivationCode)

	orders := h.store.AllOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusActivated, orders[0].Status)
	assert.Equal(t, models.StageActivated, orders[0].Stage)
	assert.Equal(t, esims[0].ExternalID, orders[0].ExternalID)

	assert.Equal(t, []string{esims[0].ExternalID}, h.prov.Activated())
	assert.Equal(t, []uint{userID}, h.cache.Invalidated())
}

func TestPurchase_InsufficientBalanceRejectedBeforeProvisioning(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("b@example.com", "5.00", "0")

	_, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_2"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	assert.Zero(t, h.prov.Created())
	assert.Equal(t, "5", h.store.Wallet(userID).BalanceUSD.String())
	assert.Empty(t, h.store.AllOrders())
	assert.Empty(t, h.store.AllTransactions())
}

func TestPurchase_SameReferenceTwiceIsReplayed(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("c@example.com", "20.00", "0")
	ctx := context.Background()

	first, err := h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_3"))
	require.NoError(t, err)

	second, err := h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_3"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	require.NotNil(t, second.ESim)
	assert.Equal(t, first.ESim.ID, second.ESim.ID)

	assert.Equal(t, 1, h.prov.Created())
	assert.Len(t, h.store.AllESims(), 1)
	assert.Len(t, h.store.AllTransactions(), 1)
	assert.Equal(t, "10", h.store.Wallet(userID).BalanceUSD.String())
}

func TestPurchase_CommitFailureRollsBackAndCompensatesOnce(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("d@example.com", "10.00", "0")
	h.store.FailOn("orders.MarkRecorded", errors.New("disk full"))

	_, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_4"))
	assert.ErrorIs(t, err, apperrors.ErrTransactionFailed)
	assert.Equal(t, "transaction failed, no funds deducted, please try again", apperrors.PublicMessage(err))

	// The debit ran before the failing statement and was rolled back.
	assert.Equal(t, 1, h.store.Calls("wallets.Debit"))
	assert.Equal(t, "10", h.store.Wallet(userID).BalanceUSD.String())
	assert.Empty(t, h.store.AllTransactions())
	assert.Empty(t, h.store.AllESims())

	assert.Equal(t, []string{"sim_1"}, h.prov.Deactivated())
	comps := h.store.AllCompensations()
	require.Len(t, comps, 1)
	assert.Equal(t, models.CompensationStatusDone, comps[0].Status)
	assert.Equal(t, "wal_4", comps[0].OrderReference)

	orders := h.store.AllOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusFailed, orders[0].Status)
	assert.Equal(t, models.StageCompensatedFailure, orders[0].Stage)
	assert.Equal(t, "sim_1", orders[0].ExternalID)
}

func TestPurchase_FailedCompensationIsQueued(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("e@example.com", "10.00", "0")
	h.store.FailOn("esims.Create", errors.New("constraint"))
	h.prov.SetDeactivateErr(errors.New("telnyx down"))

	_, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_5"))
	assert.ErrorIs(t, err, apperrors.ErrTransactionFailed)

	assert.Len(t, h.prov.Deactivated(), 1)
	comps := h.store.AllCompensations()
	require.Len(t, comps, 1)
	assert.Equal(t, models.CompensationStatusPending, comps[0].Status)
	assert.Equal(t, "telnyx down", comps[0].LastError)
	assert.Equal(t, "10", h.store.Wallet(userID).BalanceUSD.String())
}

func TestPurchase_BalanceChangedDuringProvisioning(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("f@example.com", "10.00", "0")
	h.prov.OnCreate = func() {
		require.NoError(t, h.store.Wallets().Debit(context.Background(), userID, models.CurrencyUSD, decimal.NewFromInt(8)))
	}

	_, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_6"))
	assert.ErrorIs(t, err, apperrors.ErrBalanceChanged)
	assert.Equal(t, apperrors.KindConsistency, apperrors.KindOf(err))

	assert.Equal(t, "2", h.store.Wallet(userID).BalanceUSD.String())
	assert.Equal(t, []string{"sim_1"}, h.prov.Deactivated())
	assert.Empty(t, h.store.AllESims())
}

func TestPurchase_ConcurrentSameReference(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("g@example.com", "30.00", "0")

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fresh, replayed, inProgress int
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "PLAN_10", "wal_7"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Replayed:
				replayed++
			case err == nil:
				fresh++
			case errors.Is(err, apperrors.ErrOrderInProgress):
				inProgress++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, callers-1, replayed+inProgress)
	assert.Equal(t, 1, h.prov.Created())
	assert.Len(t, h.store.AllESims(), 1)
	assert.Len(t, h.store.AllTransactions(), 1)
	assert.Equal(t, "20", h.store.Wallet(userID).BalanceUSD.String())
}

func TestPurchase_PointsReduceTheDebit(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("h@example.com", "5.00", "0")
	h.store.SeedPoints(userID, 250, 0)

	req := walletPurchase(userID, "AIRSWITCH_NG_TEST", "wal_8")
	req.PointsToUse = 200
	res, err := h.orch.Purchase(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.Order.PointsUsed)

	assert.Equal(t, "4", h.store.Wallet(userID).BalanceUSD.String())
	up, _ := h.store.UserPoints(userID)
	assert.Equal(t, int64(50), up.AvailablePoints)
	assert.Equal(t, int64(200), up.RedeemedPoints)
	assert.Equal(t, up.TotalPoints, up.AvailablePoints+up.RedeemedPoints)

	pts := h.store.AllPointsTransactions()
	require.Len(t, pts, 1)
	assert.Equal(t, int64(-200), pts[0].Amount)
	assert.Equal(t, models.PointsTypePurchase, pts[0].Type)
}

func TestPurchase_PointsBeyondBalanceRejected(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("i@example.com", "5.00", "0")
	h.store.SeedPoints(userID, 50, 0)

	req := walletPurchase(userID, "AIRSWITCH_NG_TEST", "wal_9")
	req.PointsToUse = 100
	_, err := h.orch.Purchase(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)

	req.PointsToUse = 400
	_, err = h.orch.Purchase(context.Background(), req)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Zero(t, h.prov.Created())
}

func TestPurchase_CardPathSettlesCheckoutTransaction(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("j@example.com", "0", "0")
	ctx := context.Background()

	co, err := h.orch.Checkout(ctx, CheckoutRequest{UserID: userID, PlanID: "AIRSWITCH_GLOBAL_TEST", Method: payment.MethodStripe})
	require.NoError(t, err)
	ref := co.Charge.Reference
	charges := h.stripe.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, "5", charges[0].Amount.String())
	assert.Equal(t, payment.PurposeESim, charges[0].Metadata[payment.MetaPurpose])

	pending := h.store.AllTransactions()
	require.Len(t, pending, 1)
	assert.Equal(t, models.TransactionStatusPending, pending[0].Status)

	h.stripe.Succeed(ref, "5.00", "USD", map[string]string{
		payment.MetaUserID:  fmt.Sprint(userID),
		payment.MetaPlanID:  "AIRSWITCH_GLOBAL_TEST",
		payment.MetaPurpose: payment.PurposeESim,
		payment.MetaPoints:  "0",
	})
	res, err := h.orch.Purchase(ctx, PurchaseRequest{
		UserID: userID, PlanID: "AIRSWITCH_GLOBAL_TEST", Method: payment.MethodStripe, Reference: ref,
	})
	require.NoError(t, err)
	assert.True(t, res.Activated)

	txns := h.store.AllTransactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionStatusSuccess, txns[0].Status)
	assert.Equal(t, "stripe", txns[0].Provider)
	assert.True(t, h.store.Wallet(userID).BalanceUSD.IsZero())
}

func TestPurchase_CardRetriedAfterDeclineSettlesFailedTransaction(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("j2@example.com", "0", "0")
	ctx := context.Background()

	co, err := h.orch.Checkout(ctx, CheckoutRequest{UserID: userID, PlanID: "AIRSWITCH_GLOBAL_TEST", Method: payment.MethodStripe})
	require.NoError(t, err)
	ref := co.Charge.Reference

	changed, err := h.store.Transactions().MarkFailed(ctx, ref)
	require.NoError(t, err)
	require.True(t, changed)

	h.stripe.Succeed(ref, "5.00", "USD", map[string]string{
		payment.MetaUserID:  fmt.Sprint(userID),
		payment.MetaPlanID:  "AIRSWITCH_GLOBAL_TEST",
		payment.MetaPurpose: payment.PurposeESim,
		payment.MetaPoints:  "0",
	})
	res, err := h.orch.Purchase(ctx, PurchaseRequest{
		UserID: userID, PlanID: "AIRSWITCH_GLOBAL_TEST", Method: payment.MethodStripe, Reference: ref,
	})
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.Empty(t, h.prov.Deactivated())

	txns := h.store.AllTransactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionStatusSuccess, txns[0].Status)
	assert.Equal(t, models.OrderStatusActivated, h.store.AllOrders()[0].Status)
}

func cardCheckoutWithPoints(t *testing.T, h *harness, userID uint, points int64) string {
	t.Helper()
	co, err := h.orch.Checkout(context.Background(), CheckoutRequest{
		UserID: userID, PlanID: "PLAN_10", Method: payment.MethodStripe, PointsToUse: points,
	})
	require.NoError(t, err)
	h.stripe.Succeed(co.Charge.Reference, "8.00", "USD", map[string]string{
		payment.MetaUserID:  fmt.Sprint(userID),
		payment.MetaPlanID:  "PLAN_10",
		payment.MetaPurpose: payment.PurposeESim,
		payment.MetaPoints:  fmt.Sprint(points),
	})
	return co.Charge.Reference
}

func TestPurchase_PointsSpentBeforePurchaseCreditsCapturedCharge(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("p1@example.com", "0", "0")
	h.store.SeedPoints(userID, 500, 0)
	ctx := context.Background()
	ref := cardCheckoutWithPoints(t, h, userID, 200)

	h.store.SeedPoints(userID, 50, 450)
	req := PurchaseRequest{UserID: userID, PlanID: "PLAN_10", Method: payment.MethodStripe, Reference: ref, PointsToUse: 200}

	_, err := h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)
	assert.Zero(t, h.prov.Created())
	assert.Equal(t, "8", h.store.Wallet(userID).BalanceUSD.String())

	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)
	assert.Equal(t, "8", h.store.Wallet(userID).BalanceUSD.String())

	h.store.SeedPoints(userID, 500, 0)
	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentMismatch)
	assert.Zero(t, h.prov.Created())
	assert.Equal(t, "8", h.store.Wallet(userID).BalanceUSD.String())
}

func TestPurchase_PointsRaceAtCommitCreditsCapturedCharge(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("p2@example.com", "0", "0")
	h.store.SeedPoints(userID, 500, 0)
	ctx := context.Background()
	ref := cardCheckoutWithPoints(t, h, userID, 200)

	h.store.FailOn("points.Spend", repositories.ErrInsufficientPoints)
	_, err := h.orch.Purchase(ctx, PurchaseRequest{
		UserID: userID, PlanID: "PLAN_10", Method: payment.MethodStripe, Reference: ref, PointsToUse: 200,
	})
	assert.ErrorIs(t, err, apperrors.ErrBalanceChanged)
	assert.Equal(t, []string{"sim_1"}, h.prov.Deactivated())
	assert.Equal(t, "8", h.store.Wallet(userID).BalanceUSD.String())
	assert.Equal(t, models.OrderStatusFailed, h.store.AllOrders()[0].Status)

	var statuses []string
	for _, txn := range h.store.AllTransactions() {
		statuses = append(statuses, txn.Type+"/"+txn.Status)
	}
	assert.ElementsMatch(t, []string{"DEBIT/FAILED", "CREDIT/SUCCESS"}, statuses)
}

func TestPurchase_PaystackAmountIsConvertedToNaira(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("k@example.com", "0", "0")
	ctx := context.Background()

	co, err := h.orch.Checkout(ctx, CheckoutRequest{
		UserID: userID, Email: "k@example.com", PlanID: "AIRSWITCH_NG_TEST", Method: payment.MethodPaystack,
	})
	require.NoError(t, err)
	assert.Equal(t, "4500", co.Charge.Amount.String())
	assert.Equal(t, models.CurrencyNGN, co.Charge.Currency)

	h.paystack.Succeed(co.Charge.Reference, "4499.00", "NGN", nil)
	_, err = h.orch.Purchase(ctx, PurchaseRequest{
		UserID: userID, PlanID: "AIRSWITCH_NG_TEST", Method: payment.MethodPaystack, Reference: co.Charge.Reference,
	})
	assert.ErrorIs(t, err, apperrors.ErrPaymentMismatch)
	assert.Zero(t, h.prov.Created())

	h.paystack.Succeed(co.Charge.Reference, "4500.00", "NGN", nil)
	_, err = h.orch.Purchase(ctx, PurchaseRequest{
		UserID: userID, PlanID: "AIRSWITCH_NG_TEST", Method: payment.MethodPaystack, Reference: co.Charge.Reference,
	})
	require.NoError(t, err)
}

func TestPurchase_CardAuthorizationFailures(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("l@example.com", "0", "0")
	ctx := context.Background()
	req := PurchaseRequest{UserID: userID, PlanID: "AIRSWITCH_NG_TEST", Method: payment.MethodStripe}

	req.Reference = "pi_pending"
	_, err := h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentPending)

	req.Reference = "pi_other_user"
	h.stripe.Succeed(req.Reference, "3.00", "USD", map[string]string{payment.MetaUserID: "999"})
	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentMismatch)

	req.Reference = "pi_other_plan"
	h.stripe.Succeed(req.Reference, "3.00", "USD", map[string]string{payment.MetaPlanID: "AIRSWITCH_GLOBAL_TEST"})
	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentMismatch)

	req.Reference = "pi_failed"
	h.stripe.Results[req.Reference] = payment.ChargeFailed{Reference: req.Reference, Reason: "card declined"}
	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotConfirmed)

	h.stripe.VerifyErr = apperrors.Gateway("stripe", "verify charge", errors.New("timeout"))
	req.Reference = "pi_unreachable"
	_, err = h.orch.Purchase(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotConfirmed)

	assert.Zero(t, h.prov.Created())
	assert.Empty(t, h.store.AllOrders())
}

func TestPurchase_VerifiedChargeSkipsVerification(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("m@example.com", "0", "0")

	_, err := h.orch.Purchase(context.Background(), PurchaseRequest{
		UserID: userID, PlanID: "AIRSWITCH_NG_TEST", Method: payment.MethodStripe, Reference: "pi_hook",
		Verified: &payment.ChargeSucceeded{Reference: "pi_hook", Amount: decimal.NewFromInt(3), Currency: "USD"},
	})
	require.NoError(t, err)
	assert.Zero(t, h.stripe.Verifies())
	assert.Len(t, h.store.AllESims(), 1)
}

func TestPurchase_UnknownProvisioningOutcomeKeepsOrderPending(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("n@example.com", "10.00", "0")
	h.prov.CreateErr = apperrors.Gateway("telnyx", "create resource",
		fmt.Errorf("%w: context deadline exceeded", provisioning.ErrOutcomeUnknown))
	ctx := context.Background()

	_, err := h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_10"))
	assert.ErrorIs(t, err, apperrors.ErrProvisioningUnknown)

	orders := h.store.AllOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPending, orders[0].Status)
	assert.Equal(t, models.StagePaymentVerified, orders[0].Stage)

	// A retry must not provision a second SIM.
	h.prov.CreateErr = nil
	_, err = h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_10"))
	assert.ErrorIs(t, err, apperrors.ErrOrderInProgress)
	assert.Equal(t, 1, h.prov.Created())
	assert.Equal(t, "10", h.store.Wallet(userID).BalanceUSD.String())
}

func TestPurchase_DefiniteFailureCanBeRetried(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("o@example.com", "10.00", "0")
	h.prov.CreateErr = apperrors.Gateway("telnyx", "create resource", errors.New("status 400: out of stock"))
	ctx := context.Background()

	_, err := h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_11"))
	assert.ErrorIs(t, err, apperrors.ErrProvisioningFailed)
	assert.Equal(t, "provisioning failed, no funds deducted", apperrors.PublicMessage(err))
	assert.Equal(t, models.OrderStatusFailed, h.store.AllOrders()[0].Status)
	assert.Equal(t, "10", h.store.Wallet(userID).BalanceUSD.String())

	h.prov.CreateErr = nil
	res, err := h.orch.Purchase(ctx, walletPurchase(userID, "PLAN_10", "wal_11"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusActivated, res.Order.Status)
	assert.Len(t, h.store.AllOrders(), 1)
	assert.True(t, h.store.Wallet(userID).BalanceUSD.IsZero())
}

func TestPurchase_ReferenceOfAnotherUser(t *testing.T) {
	h := newHarness(t)
	alice := h.store.SeedUser("p@example.com", "10.00", "0")
	bob := h.store.SeedUser("q@example.com", "10.00", "0")
	ctx := context.Background()

	_, err := h.orch.Purchase(ctx, walletPurchase(alice, "AIRSWITCH_NG_TEST", "shared_ref"))
	require.NoError(t, err)

	_, err = h.orch.Purchase(ctx, walletPurchase(bob, "AIRSWITCH_NG_TEST", "shared_ref"))
	assert.ErrorIs(t, err, apperrors.ErrReferenceMismatch)
	assert.Equal(t, "10", h.store.Wallet(bob).BalanceUSD.String())
}

func TestPurchase_ActivationFailureStillRecordsPurchase(t *testing.T) {
	h := newHarness(t)
	userID := h.store.SeedUser("r@example.com", "3.00", "0")
	h.prov.ActivateErr = errors.New("carrier busy")

	res, err := h.orch.Purchase(context.Background(), walletPurchase(userID, "AIRSWITCH_NG_TEST", "wal_12"))
	require.NoError(t, err)
	assert.False(t, res.Activated)
	assert.Equal(t, models.ESimStatusInactive, res.ESim.Status)
	assert.Equal(t, models.OrderStatusActivated, res.Order.Status)
	assert.Equal(t, models.StageRecorded, res.Order.Stage)
	assert.True(t, h.store.Wallet(userID).BalanceUSD.IsZero())
	assert.Empty(t, h.prov.Deactivated())
}

func TestPurchase_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Purchase(ctx, walletPurchase(1, "PLAN_10", " "))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = h.orch.Purchase(ctx, walletPurchase(1, "NOPE", "ref"))
	assert.ErrorIs(t, err, apperrors.ErrPlanNotFound)

	_, err = h.orch.Purchase(ctx, PurchaseRequest{UserID: 1, PlanID: "PLAN_10", Method: "cash", Reference: "ref"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedMethod)
}
