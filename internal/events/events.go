package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
)

// TaskRequestEvent carries a request to execute an already-persisted
// tracked task. The API layer persists the task row and debits the
// ledger first, then emits the event; handlers only need the identifiers
// and the serialized payload to build an executable task.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// TaskID is the identifier of the tracked task row to execute.
	TaskID uuid.UUID `json:"task_id"`

	// UserID is the owner of the task.
	UserID uuid.UUID `json:"user_id"`

	// Type indicates which task type should be built.
	Type domain.TaskType `json:"type"`

	// Payload contains the task-specific data serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates a TaskRequestEvent for the given tracked
// task and payload.
func NewTaskRequestEvent(taskID, userID uuid.UUID, taskType domain.TaskType, payload interface{}) (*TaskRequestEvent, error) {
	if taskID == uuid.Nil {
		return nil, errors.New("task ID cannot be empty")
	}
	if userID == uuid.Nil {
		return nil, errors.New("user ID cannot be empty")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		UserID:    userID,
		Type:      taskType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the API layer to publish task requests without direct
// knowledge of the task runner.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
