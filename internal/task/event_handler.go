package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pathwise/pathwise-api/internal/events"
)

// submitter is the slice of TaskRunner the event handler needs.
type submitter interface {
	Submit(ctx context.Context, task Task) error
}

// DispatchEventHandler implements events.EventHandler: it turns task
// request events into executable tasks via the factory registry and
// submits them to the runner. Events for unregistered types are logged
// and dropped, not failed, so one deployment can run a subset of the
// task types.
type DispatchEventHandler struct {
	registry *FactoryRegistry
	runner   submitter
	logger   *slog.Logger
}

// NewDispatchEventHandler creates the handler.
func NewDispatchEventHandler(registry *FactoryRegistry, runner submitter, logger *slog.Logger) *DispatchEventHandler {
	return &DispatchEventHandler{
		registry: registry,
		runner:   runner,
		logger:   logger.With("component", "task_dispatch_event_handler"),
	}
}

// HandleEvent implements the events.EventHandler interface.
func (h *DispatchEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	task, err := h.registry.Build(event)
	if err != nil {
		if errors.Is(err, ErrUnknownTaskType) {
			h.logger.Debug("ignoring event with unregistered task type",
				"task_type", event.Type,
				"event_id", event.ID)
			return nil
		}
		h.logger.Error("failed to build task from event",
			"error", err,
			"task_type", event.Type,
			"event_id", event.ID)
		return fmt.Errorf("failed to build task: %w", err)
	}

	if err := h.runner.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task submitted from event",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"event_id", event.ID)
	return nil
}

// Ensure DispatchEventHandler implements events.EventHandler
var _ events.EventHandler = (*DispatchEventHandler)(nil)
