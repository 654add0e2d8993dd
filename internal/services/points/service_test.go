package points

import (
	"context"
	"errors"
	"sync"
	"testing"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/fx"
	"airswitch/internal/models"
	"airswitch/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store *testutil.MemStore, cache WalletCache) *Service {
	return NewService(store, fx.NewFixedNGN(decimal.NewFromInt(1500)), config.LedgerConfig{}, cache, nil, nil)
}

func assertConserved(t *testing.T, store *testutil.MemStore) {
	t.Helper()
	for _, up := range store.AllPoints() {
		assert.Equal(t, up.TotalPoints, up.AvailablePoints+up.RedeemedPoints, "user %d", up.UserID)
		assert.GreaterOrEqual(t, up.AvailablePoints, int64(0))
	}
}

func TestRedeem_ToUSD(t *testing.T) {
	store := testutil.NewMemStore()
	cache := &testutil.FakeCache{}
	svc := newTestService(store, cache)
	userID := store.SeedUser("p1@example.com", "0", "0")
	store.SeedPoints(userID, 1000, 0)

	res, err := svc.Redeem(context.Background(), RedeemRequest{UserID: userID, Points: 500, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "5", res.Amount.String())

	up, _ := store.UserPoints(userID)
	assert.Equal(t, int64(500), up.AvailablePoints)
	assert.Equal(t, int64(500), up.RedeemedPoints)
	assert.Equal(t, "5", store.Wallet(userID).BalanceUSD.String())

	pts := store.AllPointsTransactions()
	require.Len(t, pts, 1)
	assert.Equal(t, int64(-500), pts[0].Amount)
	assert.Equal(t, models.PointsTypeRedeem, pts[0].Type)

	txns := store.AllTransactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeCredit, txns[0].Type)
	assert.Equal(t, models.TransactionStatusSuccess, txns[0].Status)
	assert.Equal(t, "5", txns[0].Amount.String())
	assert.Equal(t, pts[0].Reference, txns[0].Ref())

	assert.Equal(t, []uint{userID}, cache.Invalidated())
	assertConserved(t, store)
}

func TestRedeem_ToNGNUsesRate(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p2@example.com", "0", "0")
	store.SeedPoints(userID, 300, 0)

	res, err := svc.Redeem(context.Background(), RedeemRequest{UserID: userID, Points: 250, Currency: "ngn"})
	require.NoError(t, err)
	assert.Equal(t, models.CurrencyNGN, res.Currency)
	assert.Equal(t, "3750", store.Wallet(userID).BalanceNGN.String())
	assert.True(t, store.Wallet(userID).BalanceUSD.IsZero())
}

func TestRedeem_Rejections(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p3@example.com", "0", "0")
	store.SeedPoints(userID, 150, 0)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, RedeemRequest{UserID: userID, Points: 99})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.Redeem(ctx, RedeemRequest{UserID: userID, Points: 200})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)

	_, err = svc.Redeem(ctx, RedeemRequest{UserID: userID, Points: 100, Currency: "GBP"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedCurrency)

	assert.Empty(t, store.AllTransactions())
	assert.Empty(t, store.AllPointsTransactions())
}

func TestRedeem_RollsBackOnCreditFailure(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p4@example.com", "0", "0")
	store.SeedPoints(userID, 1000, 0)
	store.FailOn("wallets.Credit", errors.New("deadlock detected"))

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: userID, Points: 500})
	assert.ErrorIs(t, err, apperrors.ErrTransactionFailed)

	up, _ := store.UserPoints(userID)
	assert.Equal(t, int64(1000), up.AvailablePoints)
	assert.Empty(t, store.AllPointsTransactions())
	assert.True(t, store.Wallet(userID).BalanceUSD.IsZero())
}

func TestRedeem_ConcurrentNeverOverspends(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p5@example.com", "0", "0")
	store.SeedPoints(userID, 1000, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: userID, Points: 300})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	up, _ := store.UserPoints(userID)
	assert.Equal(t, int64(100), up.AvailablePoints)
	assert.Equal(t, "9", store.Wallet(userID).BalanceUSD.String())
	assertConserved(t, store)
}

func TestBalance_CreatedLazily(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p6@example.com", "0", "0")

	b, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, b.AvailablePoints)
	assert.True(t, b.USDValue.IsZero())

	store.SeedPoints(userID, 250, 0)
	b, err = svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "2.5", b.USDValue.String())
}

func TestAwardBonus_HistoryAndBreakdown(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store, nil)
	userID := store.SeedUser("p7@example.com", "0", "0")
	ctx := context.Background()

	up, err := svc.AwardBonus(ctx, userID, 400, "")
	require.NoError(t, err)
	assert.Equal(t, int64(400), up.TotalPoints)

	_, err = svc.Redeem(ctx, RedeemRequest{UserID: userID, Points: 100})
	require.NoError(t, err)

	h, err := svc.History(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.Total)
	assert.Equal(t, models.PointsTypeRedeem, h.Transactions[0].Type)

	bd, err := svc.Breakdown(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), bd[models.PointsTypeBonus])
	assert.Equal(t, int64(-100), bd[models.PointsTypeRedeem])

	_, err = svc.AwardBonus(ctx, 9999, 10, "")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	_, err = svc.AwardBonus(ctx, userID, 0, "")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assertConserved(t, store)
}
