package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/platform/logger"
	"github.com/pathwise/pathwise-api/internal/store"
)

// terminalStatuses is the SQL fragment excluding terminal rows from
// conditional state-machine updates.
const terminalStatuses = `('completed', 'failed', 'cancelled')`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new PostgresTaskStore that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.TrackedTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	if task.Status != domain.TaskStatusQueued {
		return fmt.Errorf("%w: new tasks must be queued", store.ErrInvalidEntity)
	}

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	query := `
		INSERT INTO tracked_tasks (id, user_id, type, status, progress, stage, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Type,
		task.Status,
		task.Progress,
		task.Stage,
		payload,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackedTask, error) {
	query := `
		SELECT id, user_id, type, status, progress, stage, payload, result_id, error_message, created_at, updated_at
		FROM tracked_tasks
		WHERE id = $1
	`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// Claim implements store.TaskStore.Claim. The conditional update is the
// claim token: exactly one of any number of racing executors observes an
// affected row.
func (s *PostgresTaskStore) Claim(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tracked_tasks
		SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'queued'
	`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		log.Error("failed to claim task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrTaskNotClaimable
	}

	return nil
}

// UpdateProgress implements store.TaskStore.UpdateProgress
func (s *PostgresTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, stage string) error {
	query := `
		UPDATE tracked_tasks
		SET progress = $2, stage = $3, updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`
	result, err := s.db.ExecContext(ctx, query, id, progress, stage, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return s.classifyMiss(ctx, id)
	}

	return nil
}

// Complete implements store.TaskStore.Complete
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID, resultID *uuid.UUID) error {
	query := `
		UPDATE tracked_tasks
		SET status = 'completed', progress = 100, result_id = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
	return s.execTerminal(ctx, id, query, id, resultID, time.Now().UTC())
}

// Fail implements store.TaskStore.Fail
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE tracked_tasks
		SET status = 'failed', error_message = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
	return s.execTerminal(ctx, id, query, id, errMsg, time.Now().UTC())
}

// Cancel implements store.TaskStore.Cancel
func (s *PostgresTaskStore) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tracked_tasks
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
	return s.execTerminal(ctx, id, query, id, time.Now().UTC())
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tracked_tasks WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// FindByUserAndStatus implements store.TaskStore.FindByUserAndStatus
func (s *PostgresTaskStore) FindByUserAndStatus(ctx context.Context, userID uuid.UUID, statuses ...domain.TaskStatus) ([]*domain.TrackedTask, error) {
	query := `
		SELECT id, user_id, type, status, progress, stage, payload, result_id, error_message, created_at, updated_at
		FROM tracked_tasks
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC
	`
	statusStrings := make([]string, len(statuses))
	for i, status := range statuses {
		statusStrings[i] = string(status)
	}

	rows, err := s.db.QueryContext(ctx, query, userID, statusStrings)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// FindStale implements store.TaskStore.FindStale
func (s *PostgresTaskStore) FindStale(ctx context.Context, userID uuid.UUID, olderThan time.Duration) ([]*domain.TrackedTask, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		SELECT id, user_id, type, status, progress, stage, payload, result_id, error_message, created_at, updated_at
		FROM tracked_tasks
		WHERE status IN ('queued', 'processing')
		  AND created_at < $1
		  AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY created_at ASC
	`
	var userArg any
	if userID != uuid.Nil {
		userArg = userID
	}

	rows, err := s.db.QueryContext(ctx, query, cutoff, userArg)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// execTerminal runs a conditional terminal-state update and classifies a
// zero-row result as finalized or missing.
func (s *PostgresTaskStore) execTerminal(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to finalize task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return s.classifyMiss(ctx, id)
	}

	return nil
}

// classifyMiss distinguishes "row gone" from "row already terminal" after
// a conditional update affected nothing.
func (s *PostgresTaskStore) classifyMiss(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tracked_tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return MapError(err)
	}
	return store.ErrTaskFinalized
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.TrackedTask, error) {
	var (
		task         domain.TrackedTask
		payload      []byte
		resultID     uuid.NullUUID
		errorMessage sql.NullString
		stage        sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Type,
		&task.Status,
		&task.Progress,
		&stage,
		&payload,
		&resultID,
		&errorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Stage = stage.String
	task.Error = errorMessage.String
	if resultID.Valid {
		task.ResultID = &resultID.UUID
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
	}

	return &task, nil
}

func collectTasks(rows *sql.Rows) ([]*domain.TrackedTask, error) {
	var tasks []*domain.TrackedTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
