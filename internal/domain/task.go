package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a tracked task.
type TaskStatus string

// Possible tracked-task status values. Transitions are monotone forward
// except into cancelled/failed, which are terminal from any non-terminal
// state. Queued is the only valid initial state.
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state. Terminal
// statuses are never overwritten.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskType identifies the kind of work a tracked task represents.
type TaskType string

// Supported task types.
const (
	TaskTypeAnalyzeResume  TaskType = "analyze_resume"
	TaskTypeOptimizeResume TaskType = "optimize_resume"
	TaskTypeAddSkill       TaskType = "add_skill"
	TaskTypeInterviewPrep  TaskType = "interview_prep"
	TaskTypeCoverLetter    TaskType = "cover_letter"
)

// Tracked-task validation errors
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID   = errors.New("task user ID cannot be empty")
	ErrInvalidTaskType   = errors.New("invalid task type")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidProgress   = errors.New("task progress must be between 0 and 100")
)

// TrackedTask represents a client-visible unit of asynchronous work with
// progress and stage reporting. It is created by a client action and
// mutated only by the executor that claimed it.
type TrackedTask struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Type      TaskType       `json:"type"`
	Status    TaskStatus     `json:"status"`
	Progress  int            `json:"progress"`
	Stage     string         `json:"stage"`
	Payload   map[string]any `json:"payload"`
	ResultID  *uuid.UUID     `json:"result_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewTrackedTask creates a new TrackedTask in the queued state with the
// given user ID, type, and payload. It generates a new UUID for the task ID
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewTrackedTask(userID uuid.UUID, taskType TaskType, payload map[string]any) (*TrackedTask, error) {
	now := time.Now().UTC()
	task := &TrackedTask{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      taskType,
		Status:    TaskStatusQueued,
		Progress:  0,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the TrackedTask has valid data.
// Returns an error if any field fails validation.
func (t *TrackedTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if !isValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// PayloadString returns the string value stored in the payload under the
// given key, or "" when the key is absent or not a string. Executors use
// this for loosely typed payload fields such as the company name shown in
// failure alerts.
func (t *TrackedTask) PayloadString(key string) string {
	if t.Payload == nil {
		return ""
	}
	if s, ok := t.Payload[key].(string); ok {
		return s
	}
	return ""
}

func isValidTaskType(taskType TaskType) bool {
	switch taskType {
	case TaskTypeAnalyzeResume, TaskTypeOptimizeResume, TaskTypeAddSkill,
		TaskTypeInterviewPrep, TaskTypeCoverLetter:
		return true
	default:
		return false
	}
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
