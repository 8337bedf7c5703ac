package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// Common errors returned by the ledger service.
var (
	// ErrInsufficientBalance is returned when a debit would take the
	// balance negative. The transaction is aborted: no balance change,
	// no activity row.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrInvalidAmount is returned for non-positive debit or credit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Service provides transactional token-balance movements. All methods run
// as single atomic read-modify-write transactions; concurrent debits for
// the same user serialize on the balance row lock.
type Service struct {
	db     *sql.DB
	store  store.LedgerStore
	logger *slog.Logger
}

// NewService creates a new ledger Service.
func NewService(db *sql.DB, ledgerStore store.LedgerStore, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if ledgerStore == nil {
		return nil, errors.New("ledger store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Service{
		db:     db,
		store:  ledgerStore,
		logger: logger.With(slog.String("component", "ledger_service")),
	}, nil
}

// Debit atomically subtracts cost from the user's balance and appends the
// documenting activity row. Fails with ErrInsufficientBalance when the
// balance cannot cover the cost, leaving both the balance and the
// activity log untouched. Returns the new balance.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, cost int, activityType domain.ActivityType, description, resourceID string) (int, error) {
	if cost <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.store.WithTx(tx)

		balance, err := txStore.GetBalanceForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		if balance < cost {
			s.logger.Info("debit rejected",
				slog.String("user_id", userID.String()),
				slog.Int("balance", balance),
				slog.Int("cost", cost))
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, cost)
		}

		newBalance = balance - cost
		if err := txStore.SetBalance(ctx, userID, newBalance); err != nil {
			return fmt.Errorf("failed to write balance: %w", err)
		}

		activity, err := domain.NewLedgerActivity(userID, activityType, description, cost, newBalance, resourceID)
		if err != nil {
			return err
		}

		if err := txStore.InsertActivity(ctx, activity); err != nil {
			return fmt.Errorf("failed to append activity: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("debit applied",
		slog.String("user_id", userID.String()),
		slog.Int("cost", cost),
		slog.Int("new_balance", newBalance),
		slog.String("activity_type", string(activityType)))
	return newBalance, nil
}

// Credit atomically adds amount to the user's balance, keyed on the
// external payment reference for idempotency: a duplicate delivery of the
// same confirmation returns the balance recorded by the first application
// without moving tokens again. Returns the balance after the credit.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int, paymentRef string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if paymentRef == "" {
		return 0, errors.New("payment reference cannot be empty")
	}

	var newBalance int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.store.WithTx(tx)

		// Idempotency guard: the payment reference doubles as the
		// activity's resource ID.
		existing, err := txStore.GetActivityByResource(ctx, userID, paymentRef)
		if err == nil {
			s.logger.Info("duplicate payment confirmation ignored",
				slog.String("user_id", userID.String()),
				slog.String("payment_ref", paymentRef))
			newBalance = existing.TokenBalanceAfter
			return nil
		}
		if !store.IsNotFoundError(err) {
			return fmt.Errorf("failed to check payment reference: %w", err)
		}

		balance, err := txStore.GetBalanceForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		newBalance = balance + amount
		if err := txStore.SetBalance(ctx, userID, newBalance); err != nil {
			return fmt.Errorf("failed to write balance: %w", err)
		}

		activity, err := domain.NewLedgerActivity(
			userID, domain.ActivityTypePurchase, "token purchase", -amount, newBalance, paymentRef)
		if err != nil {
			return err
		}

		if err := txStore.InsertActivity(ctx, activity); err != nil {
			return fmt.Errorf("failed to append activity: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// Activities returns the user's most recent activity rows.
func (s *Service) Activities(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListActivities(ctx, userID, limit)
}
