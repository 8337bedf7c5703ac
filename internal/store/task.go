package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pathwise/pathwise-api/internal/domain"
)

// Conditional-update errors for the tracked-task state machine.
var (
	// ErrTaskNotClaimable is returned when a claim finds the task no longer
	// in the queued state (already claimed by another executor, finished,
	// or deleted). The loser of a claim race treats this as a quiet no-op.
	ErrTaskNotClaimable = errors.New("task is not claimable")

	// ErrTaskFinalized is returned when a terminal write finds the task
	// already in a terminal state. Terminal states are never overwritten.
	ErrTaskFinalized = errors.New("task already finalized")
)

// TaskStore defines the interface for tracked-task persistence.
//
// State transitions are enforced by conditional updates: Claim succeeds
// only from queued, progress writes only while processing, and terminal
// writes only while non-terminal. A concurrent executor losing any of
// these races receives a sentinel error instead of silently overwriting.
type TaskStore interface {
	// Create saves a new tracked task. The task must be in the queued
	// state; queued is the only valid initial state.
	Create(ctx context.Context, task *domain.TrackedTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackedTask, error)

	// Claim transitions the task from queued to processing, marking it
	// owned by the calling executor for the rest of its lifecycle.
	// Returns ErrTaskNotClaimable if the task is not queued or is gone.
	Claim(ctx context.Context, id uuid.UUID) error

	// UpdateProgress writes (progress, stage, updatedAt) for a processing
	// task. Progress writes are idempotent; last write wins.
	// Returns ErrTaskNotFound if the task row no longer exists.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, stage string) error

	// Complete transitions a non-terminal task to completed with an
	// optional result reference.
	// Returns ErrTaskFinalized if the task is already terminal,
	// ErrTaskNotFound if it is gone.
	Complete(ctx context.Context, id uuid.UUID, resultID *uuid.UUID) error

	// Fail transitions a non-terminal task to failed with the given
	// human-readable error message.
	// Returns ErrTaskFinalized if the task is already terminal,
	// ErrTaskNotFound if it is gone.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// Cancel transitions a non-terminal task to cancelled.
	// Returns ErrTaskFinalized if the task is already terminal,
	// ErrTaskNotFound if it is gone.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Delete removes the task record entirely. A user-initiated cancel of
	// a queued task deletes the record; in-flight executors observe the
	// missing row at their next checkpoint.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByUserAndStatus retrieves the user's tasks in any of the given
	// statuses, oldest first. Returns an empty slice when none match.
	FindByUserAndStatus(ctx context.Context, userID uuid.UUID, statuses ...domain.TaskStatus) ([]*domain.TrackedTask, error)

	// FindStale retrieves queued and processing tasks whose creation time
	// predates now by more than olderThan. uuid.Nil sweeps all users.
	FindStale(ctx context.Context, userID uuid.UUID, olderThan time.Duration) ([]*domain.TrackedTask, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
