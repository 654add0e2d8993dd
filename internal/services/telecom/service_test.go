package telecom

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/services/provisioning"
	"airswitch/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const number = "+15550001111"

func newService() (*Service, *testutil.MemStore, *testutil.FakeCarrier) {
	store := testutil.NewMemStore()
	carrier := &testutil.FakeCarrier{}
	return NewService(store, carrier, carrier, nil), store, carrier
}

func TestSearchNumbers_DefaultsAndValidation(t *testing.T) {
	svc, _, carrier := newService()
	for i := 0; i < 12; i++ {
		carrier.Available = append(carrier.Available, provisioning.AvailableNumber{PhoneNumber: fmt.Sprintf("+1555000%04d", i)})
	}

	numbers, err := svc.SearchNumbers(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, numbers, DefaultSearchSize)

	_, err = svc.SearchNumbers(context.Background(), "USA", 5)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestPurchaseNumber_ClaimsOrdersAndReplays(t *testing.T) {
	svc, store, carrier := newService()
	ctx := context.Background()
	userID := store.SeedUser("n1@example.com", "0", "0")

	res, err := svc.PurchaseNumber(ctx, userID, number)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, models.NumberStatusActive, res.Number.Status)
	assert.Equal(t, "ord_1", res.Number.OrderID)

	res, err = svc.PurchaseNumber(ctx, userID, number)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Len(t, carrier.Orders(), 1)

	other := store.SeedUser("n2@example.com", "0", "0")
	_, err = svc.PurchaseNumber(ctx, other, number)
	assert.ErrorIs(t, err, apperrors.ErrNumberUnavailable)
	assert.Len(t, carrier.Orders(), 1)

	numbers, err := svc.Numbers(ctx, userID)
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, number, numbers[0].PhoneNumber)
}

func TestPurchaseNumber_FailedOrderCanBeRetried(t *testing.T) {
	svc, store, carrier := newService()
	ctx := context.Background()
	userID := store.SeedUser("n3@example.com", "0", "0")

	carrier.OrderErr = apperrors.Gateway("telnyx", "purchase number", errors.New("number no longer available"))
	_, err := svc.PurchaseNumber(ctx, userID, number)
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))
	assert.Equal(t, models.NumberStatusFailed, store.AllNumbers()[0].Status)

	carrier.OrderErr = nil
	other := store.SeedUser("n4@example.com", "0", "0")
	res, err := svc.PurchaseNumber(ctx, other, number)
	require.NoError(t, err)
	assert.Equal(t, other, res.Number.UserID)
	require.Len(t, store.AllNumbers(), 1)
	assert.Equal(t, models.NumberStatusActive, store.AllNumbers()[0].Status)
}

func TestPurchaseNumber_UnknownOutcomeStaysPendingUntilSynced(t *testing.T) {
	svc, store, carrier := newService()
	ctx := context.Background()
	userID := store.SeedUser("n5@example.com", "0", "0")

	carrier.OrderErr = apperrors.Gateway("telnyx", "purchase number", fmt.Errorf("%w: timeout", provisioning.ErrOutcomeUnknown))
	_, err := svc.PurchaseNumber(ctx, userID, number)
	assert.ErrorIs(t, err, provisioning.ErrOutcomeUnknown)

	carrier.OrderErr = nil
	_, err = svc.PurchaseNumber(ctx, userID, number)
	assert.ErrorIs(t, err, apperrors.ErrNumberPending)
	assert.Len(t, carrier.Orders(), 1)

	matched, err := svc.SyncNumber(ctx, number, "ord_x", provisioning.NumberOrderSuccess)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, models.NumberStatusActive, store.AllNumbers()[0].Status)
	assert.Equal(t, "ord_x", store.AllNumbers()[0].OrderID)
}

func TestSendMessage_RequiresAnActiveOwnedNumber(t *testing.T) {
	svc, store, carrier := newService()
	ctx := context.Background()
	userID := store.SeedUser("n6@example.com", "0", "0")
	other := store.SeedUser("n7@example.com", "0", "0")

	req := SendRequest{UserID: userID, From: number, To: "+15550002222", Text: "hello"}
	_, err := svc.SendMessage(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrNumberNotOwned)

	_, err = svc.PurchaseNumber(ctx, other, number)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrNumberNotOwned)
	assert.Empty(t, carrier.Sent())

	req.UserID = other
	msg, err := svc.SendMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", msg.ExternalID)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	require.Len(t, carrier.Sent(), 1)

	page, err := svc.Messages(ctx, other, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, "hello", page.Messages[0].Text)

	page, err = svc.Messages(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestSendMessage_Validation(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.SendMessage(context.Background(), SendRequest{UserID: 1, From: "5550001111", To: "+15550002222", Text: "x"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.SendMessage(context.Background(), SendRequest{UserID: 1, From: number, To: "+15550002222", Text: "  "})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
