package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/store"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StaleTaskAge defines how long a task can sit in a non-terminal
	// state before the startup sweep fails it
	StaleTaskAge time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:  2,
		QueueSize:    100,
		StaleTaskAge: 10 * time.Minute,
	}
}

// TaskRunner manages background task processing. Tracked-task rows are
// persisted by the admission path before submission; workers claim the
// row before executing so that at most one executor ever runs a task,
// even when the same task is submitted to multiple runners.
type TaskRunner struct {
	store      store.TaskStore
	queue      *TaskQueue
	reaper     *Reaper
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(taskStore store.TaskStore, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      taskStore,
		queue:      NewTaskQueue(config.QueueSize, logger),
		reaper:     NewReaper(taskStore, config.StaleTaskAge, logger),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		running:    make(map[uuid.UUID]context.CancelFunc),
		errHandler: func(task Task, err error) {
			// Default error handler just logs the error
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit enqueues a task for execution. The tracked-task row must
// already be persisted; admission (ledger debit + row creation) happens
// before the task reaches the runner.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Start runs the startup stale sweep and begins processing tasks
func (r *TaskRunner) Start() error {
	// Fail anything left over from a previous run. Generation jobs are
	// user-retryable, not requeueable: their inputs live in the payload
	// but the claim was lost with the process.
	if _, err := r.reaper.Sweep(r.ctx, uuid.Nil); err != nil {
		return fmt.Errorf("startup stale sweep: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	return nil
}

// Stop gracefully shuts down the task runner
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.queue.Close()
	r.wg.Wait()
}

// Cancel aborts an in-flight execution of the given task, if this
// runner is executing it. The terminal status write still goes through
// the conditional cancel path.
func (r *TaskRunner) Cancel(taskID uuid.UUID) {
	r.mu.Lock()
	cancel, ok := r.running[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processTask(task, id)
		}
	}
}

// processTask claims and executes a single task
func (r *TaskRunner) processTask(task Task, workerID int) {
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	r.mu.Lock()
	r.running[task.ID()] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, task.ID())
		r.mu.Unlock()
	}()

	// Claim before executing. Losing the claim means another executor
	// (or the user's cancel) got there first; skip quietly.
	if err := r.store.Claim(ctx, task.ID()); err != nil {
		if errors.Is(err, store.ErrTaskNotClaimable) {
			logger.Debug("task no longer claimable, skipping")
			return
		}
		logger.Error("failed to claim task", "error", err)
		return
	}

	logger.Info("processing task")

	resultID, err := task.Execute(ctx)
	if err != nil {
		r.settleFailure(ctx, task, err, logger)
		return
	}

	if err := r.store.Complete(ctx, task.ID(), resultID); err != nil {
		if errors.Is(err, store.ErrTaskFinalized) {
			logger.Warn("task finalized elsewhere before completion write")
			return
		}
		logger.Error("failed to mark task completed", "error", err)
		return
	}

	logger.Info("task completed successfully")
}

func (r *TaskRunner) settleFailure(ctx context.Context, task Task, execErr error, logger *slog.Logger) {
	// Terminal writes after a cancelled context still need to land.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if errors.Is(execErr, ErrCancelled) {
		logger.Info("task cancelled at checkpoint")
		if err := r.store.Cancel(ctx, task.ID()); err != nil &&
			!errors.Is(err, store.ErrTaskFinalized) && !errors.Is(err, store.ErrTaskNotFound) {
			logger.Error("failed to mark task cancelled", "error", err)
		}
		return
	}

	logger.Error("task execution failed", "error", execErr)
	if err := r.store.Fail(ctx, task.ID(), execErr.Error()); err != nil &&
		!errors.Is(err, store.ErrTaskFinalized) && !errors.Is(err, store.ErrTaskNotFound) {
		logger.Error("failed to mark task failed", "error", err)
	}

	r.errHandler(task, execErr)
}
