package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
)

// LedgerStore defines the low-level persistence operations the ledger
// service composes inside a single transaction. It deliberately exposes
// balance reads with row locking so concurrent debits for the same user
// serialize at the database.
type LedgerStore interface {
	// GetBalanceForUpdate reads the user's token balance, locking the row
	// for the remainder of the enclosing transaction.
	// Returns ErrUserNotFound if the user does not exist.
	GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (int, error)

	// SetBalance writes the user's token balance.
	// Returns ErrUserNotFound if the user does not exist.
	SetBalance(ctx context.Context, userID uuid.UUID, balance int) error

	// InsertActivity appends an immutable activity row.
	InsertActivity(ctx context.Context, activity *domain.LedgerActivity) error

	// GetActivityByResource retrieves the user's activity row carrying the
	// given resource reference, if any. The credit path uses this as its
	// idempotency check keyed on the external payment reference.
	// Returns ErrNotFound when no such activity exists.
	GetActivityByResource(ctx context.Context, userID uuid.UUID, resourceID string) (*domain.LedgerActivity, error)

	// ListActivities retrieves the user's activity rows, newest first.
	ListActivities(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerActivity, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
