package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// Executor runs a claimed task snapshot to completion. It is supplied
// by the wiring layer to bridge picker-started tasks into the same
// execution code the runner uses.
type Executor func(ctx context.Context, task domain.TrackedTask) error

// AlertFunc is called when a picker-started task fails, with a
// human-readable subject taken from the task payload.
type AlertFunc func(subject string, task domain.TrackedTask, err error)

// QueuePicker opportunistically executes queued tasks observed in
// snapshot streams. It competes with the server-side runner through the
// store's claim semantics: whoever claims first executes, the other
// skips. The started set guarantees the picker itself never starts the
// same task twice, regardless of how many snapshots it sees.
type QueuePicker struct {
	store    store.TaskStore
	executor Executor
	alert    AlertFunc
	logger   *slog.Logger

	mu      sync.Mutex
	started map[uuid.UUID]context.CancelFunc
}

// NewQueuePicker creates a QueuePicker. alert may be nil.
func NewQueuePicker(taskStore store.TaskStore, executor Executor, alert AlertFunc, logger *slog.Logger) *QueuePicker {
	return &QueuePicker{
		store:    taskStore,
		executor: executor,
		alert:    alert,
		logger:   logger.With("component", "queue_picker"),
		started:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// OnSnapshot inspects a task snapshot and starts execution when the
// task is queued and not already started by this picker.
func (p *QueuePicker) OnSnapshot(ctx context.Context, task domain.TrackedTask) {
	if task.Status != domain.TaskStatusQueued {
		return
	}

	p.mu.Lock()
	if _, ok := p.started[task.ID]; ok {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.started[task.ID] = cancel
	p.mu.Unlock()

	go p.run(runCtx, task)
}

// CancelLocal aborts a task this picker has started but whose claim may
// not have landed yet. The store-level cancel is the caller's business;
// this only clears the local execution.
func (p *QueuePicker) CancelLocal(taskID uuid.UUID) {
	p.mu.Lock()
	cancel, ok := p.started[taskID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *QueuePicker) run(ctx context.Context, task domain.TrackedTask) {
	defer p.settle(task.ID)

	logger := p.logger.With("task_id", task.ID, "task_type", task.Type)

	if err := p.store.Claim(ctx, task.ID); err != nil {
		if errors.Is(err, store.ErrTaskNotClaimable) {
			logger.Debug("task claimed elsewhere, skipping")
			return
		}
		logger.Error("failed to claim task", "error", err)
		return
	}

	logger.Info("picker executing task")

	if err := p.executor(ctx, task); err != nil {
		logger.Error("picker task execution failed", "error", err)

		if failErr := p.store.Fail(ctx, task.ID, err.Error()); failErr != nil &&
			!errors.Is(failErr, store.ErrTaskFinalized) && !errors.Is(failErr, store.ErrTaskNotFound) {
			logger.Error("failed to mark picker task failed", "error", failErr)
		}

		if p.alert != nil {
			p.alert(task.PayloadString("company_name"), task, err)
		}
	}
}

func (p *QueuePicker) settle(taskID uuid.UUID) {
	p.mu.Lock()
	if cancel, ok := p.started[taskID]; ok {
		cancel()
		delete(p.started, taskID)
	}
	p.mu.Unlock()
}
