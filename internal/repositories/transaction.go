package repositories

import (
	"context"

	"airswitch/internal/models"
)

// TransactionRepository stores the money audit trail. The unique reference
// column is the idempotency gate for anything keyed by a payment reference.
type TransactionRepository interface {
	// Create inserts txn, returning ErrDuplicateReference if its reference exists.
	Create(ctx context.Context, txn *models.Transaction) error
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)

	// Settle moves the PENDING or FAILED row of the same user and type to
	// SUCCESS, or inserts txn as SUCCESS when no such row exists. Any other
	// existing row with the reference yields ErrDuplicateReference.
	Settle(ctx context.Context, txn *models.Transaction) error

	// MarkFailed moves a PENDING row to FAILED.
	MarkFailed(ctx context.Context, reference string) (bool, error)

	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error)
}
