package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// ErrCancelled is returned by task execution when a cooperative
// cancellation checkpoint observes the task or its target document in a
// cancelled state. Executors translate it into a cancelled terminal
// write rather than a failure.
var ErrCancelled = errors.New("task cancelled")

// Task represents a unit of background work bound to a persisted
// tracked-task row. The row is created by the admission path before the
// Task is built; executors claim the row, run Execute, and write the
// terminal state with the returned result reference.
type Task interface {
	// ID returns the tracked-task row identifier.
	ID() uuid.UUID

	// UserID returns the owner of the task.
	UserID() uuid.UUID

	// Type returns the task type identifier.
	Type() domain.TaskType

	// Execute runs the task logic. On success it returns the identifier
	// of the produced result document, when one exists. Returning
	// ErrCancelled (possibly wrapped) signals cooperative cancellation.
	Execute(ctx context.Context) (*uuid.UUID, error)
}

// progressCheckpoint writes a progress update for the tracked-task row. A
// missing row means the user cancelled via delete; checkpoints surface
// that as ErrCancelled so work stops before the next stage.
func progressCheckpoint(ctx context.Context, tasks store.TaskStore, taskID uuid.UUID, progress int, stage string) error {
	if err := tasks.UpdateProgress(ctx, taskID, progress, stage); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return ErrCancelled
		}
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue.
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue
// allowing services to enqueue tasks for processing.
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}
