package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/platform/logger"
	"github.com/pathwise/pathwise-api/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface
// using a PostgreSQL database as the storage backend. It is always used
// through WithTx inside the ledger service's transaction.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the
// LedgerStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

// Ensure PostgresLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx returns a new PostgresLedgerStore that uses the provided transaction.
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{
		db:     tx,
		logger: s.logger,
	}
}

// GetBalanceForUpdate implements store.LedgerStore.GetBalanceForUpdate.
// The row lock serializes concurrent movements for the same user.
func (s *PostgresLedgerStore) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT token_balance FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrUserNotFound
		}
		return 0, MapError(err)
	}

	return balance, nil
}

// SetBalance implements store.LedgerStore.SetBalance
func (s *PostgresLedgerStore) SetBalance(ctx context.Context, userID uuid.UUID, balance int) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE users SET token_balance = $2, updated_at = NOW() WHERE id = $1`,
		userID,
		balance,
	)
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// InsertActivity implements store.LedgerStore.InsertActivity
func (s *PostgresLedgerStore) InsertActivity(ctx context.Context, activity *domain.LedgerActivity) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := activity.Validate(); err != nil {
		log.Warn("activity validation failed during insert",
			slog.String("error", err.Error()),
			slog.String("activity_id", activity.ActivityID.String()))
		return err
	}

	query := `
		INSERT INTO ledger_activities (activity_id, user_id, type, description,
			tokens_used, token_balance_after, resource_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		activity.ActivityID,
		activity.UserID,
		activity.Type,
		activity.Description,
		activity.TokensUsed,
		activity.TokenBalanceAfter,
		activity.ResourceID,
		activity.Status,
		activity.CreatedAt,
	)
	if err != nil {
		log.Error("failed to insert ledger activity",
			slog.String("error", err.Error()),
			slog.String("activity_id", activity.ActivityID.String()),
			slog.String("user_id", activity.UserID.String()))
		return MapError(err)
	}

	return nil
}

// GetActivityByResource implements store.LedgerStore.GetActivityByResource
func (s *PostgresLedgerStore) GetActivityByResource(ctx context.Context, userID uuid.UUID, resourceID string) (*domain.LedgerActivity, error) {
	query := `
		SELECT activity_id, user_id, type, description, tokens_used, token_balance_after,
			resource_id, status, created_at
		FROM ledger_activities
		WHERE user_id = $1 AND resource_id = $2
	`
	activity, err := scanActivity(s.db.QueryRowContext(ctx, query, userID, resourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, MapError(err)
	}

	return activity, nil
}

// ListActivities implements store.LedgerStore.ListActivities
func (s *PostgresLedgerStore) ListActivities(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerActivity, error) {
	query := `
		SELECT activity_id, user_id, type, description, tokens_used, token_balance_after,
			resource_id, status, created_at
		FROM ledger_activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var activities []*domain.LedgerActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	return activities, nil
}

func scanActivity(row rowScanner) (*domain.LedgerActivity, error) {
	var (
		activity    domain.LedgerActivity
		description sql.NullString
		resourceID  sql.NullString
	)

	err := row.Scan(
		&activity.ActivityID,
		&activity.UserID,
		&activity.Type,
		&description,
		&activity.TokensUsed,
		&activity.TokenBalanceAfter,
		&resourceID,
		&activity.Status,
		&activity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	activity.Description = description.String
	activity.ResourceID = resourceID.String
	return &activity, nil
}
