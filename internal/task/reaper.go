package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/store"
)

// StaleTaskError is the error message recorded on tasks failed by the
// reaper. Clients match on it to distinguish timeouts from real failures.
const StaleTaskError = "stale timeout"

// Reaper fails tracked tasks that have sat in a non-terminal state past
// the configured age. A task that old has lost its executor: either the
// process died mid-run or the client that queued it never came back.
type Reaper struct {
	store  store.TaskStore
	maxAge time.Duration
	logger *slog.Logger
}

// NewReaper creates a Reaper with the given age cutoff.
func NewReaper(taskStore store.TaskStore, maxAge time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:  taskStore,
		maxAge: maxAge,
		logger: logger.With("component", "task_reaper"),
	}
}

// Sweep fails all queued and processing tasks older than the cutoff.
// Pass uuid.Nil to sweep every user (startup), or a user ID to scope the
// sweep to that user's tasks. Returns the number of tasks failed.
func (r *Reaper) Sweep(ctx context.Context, userID uuid.UUID) (int, error) {
	stale, err := r.store.FindStale(ctx, userID, r.maxAge)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale tasks: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	r.logger.Info("sweeping stale tasks",
		"count", len(stale),
		"max_age", r.maxAge)

	failed := 0
	for _, t := range stale {
		if err := r.store.Fail(ctx, t.ID, StaleTaskError); err != nil {
			// A concurrent terminal write or delete settles the task for
			// us; anything else is worth surfacing.
			if errors.Is(err, store.ErrTaskFinalized) || errors.Is(err, store.ErrTaskNotFound) {
				continue
			}
			r.logger.Error("failed to reap stale task",
				"task_id", t.ID,
				"task_type", t.Type,
				"error", err)
			continue
		}
		failed++
	}

	return failed, nil
}
