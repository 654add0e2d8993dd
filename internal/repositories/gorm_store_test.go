package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"airswitch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDb.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestWalletRepository_DebitIsConditional(t *testing.T) {
	store, mock := newMockStore(t)
	debitSQL := regexp.QuoteMeta(`UPDATE "wallets" SET "balance_usd"=balance_usd - $1`) +
		".*" + regexp.QuoteMeta(`WHERE user_id = $3 AND balance_usd >= $4`)

	t.Run("covered balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(debitSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.Wallets().Debit(context.Background(), 1, models.CurrencyUSD, decimal.NewFromInt(10))
		assert.NoError(t, err)
	})

	t.Run("no qualifying row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(debitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.Wallets().Debit(context.Background(), 1, models.CurrencyUSD, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("unknown currency never reaches the database", func(t *testing.T) {
		err := store.Wallets().Debit(context.Background(), 1, "EUR", decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_CreateDuplicateReference(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "transactions"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := store.Transactions().Create(context.Background(), &models.Transaction{
		UserID:    1,
		Amount:    decimal.NewFromInt(5),
		Currency:  models.CurrencyUSD,
		Type:      models.TransactionTypeCredit,
		Status:    models.TransactionStatusSuccess,
		Reference: models.StringPtr("pi_123"),
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_SettlePromotesFailedRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "transactions" SET .* WHERE reference = \$\d+ AND status IN \(\$\d+,\$\d+\) AND type = \$\d+ AND user_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "transactions" WHERE reference = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "status", "reference"}).
			AddRow(9, 1, models.TransactionTypeCredit, models.TransactionStatusSuccess, "pi_retry"))

	txn := &models.Transaction{
		UserID:    1,
		Amount:    decimal.NewFromInt(5),
		Currency:  models.CurrencyUSD,
		Type:      models.TransactionTypeCredit,
		Reference: models.StringPtr("pi_retry"),
	}
	require.NoError(t, store.Transactions().Settle(context.Background(), txn))
	assert.Equal(t, uint(9), txn.ID)
	assert.Equal(t, models.TransactionStatusSuccess, txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointsRepository_SpendIsConditional(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "user_points" SET "available_points"=available_points - $1,"redeemed_points"=redeemed_points + $2`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Points().Spend(context.Background(), 7, 500)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferralRepository_CompleteOnlyFromPending(t *testing.T) {
	store, mock := newMockStore(t)
	completeSQL := regexp.QuoteMeta(`UPDATE "referrals" SET`) + ".*" +
		regexp.QuoteMeta(`WHERE referral_code = $`) + `\d+` + regexp.QuoteMeta(` AND status = $`)

	mock.ExpectBegin()
	mock.ExpectExec(completeSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(completeSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := store.Referrals().Complete(context.Background(), "AIR-TEST1", 9, 500, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Referrals().Complete(context.Background(), "AIR-TEST1", 10, 500, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_AtomicRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	failure := errors.New("order insert failed")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wallets" SET "balance_usd"=balance_usd - $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.Atomic(context.Background(), func(tx Store) error {
		if err := tx.Wallets().Debit(context.Background(), 1, models.CurrencyUSD, decimal.NewFromInt(10)); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ClaimDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "esim_orders"`)).
		WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectRollback()

	order := &models.EsimOrder{UserID: 1, PlanID: "AIRSWITCH_NG_TEST", Reference: "pi_1", Amount: decimal.NewFromInt(3), Currency: "USD"}
	err := store.Orders().Claim(context.Background(), order)
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
