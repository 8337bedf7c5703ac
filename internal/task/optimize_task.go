package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/generation"
	"github.com/pathwise/pathwise-api/internal/store"
)

// optimizePayload is the serialized task payload for resume optimization.
type optimizePayload struct {
	AnalysisID     uuid.UUID `json:"analysis_id"`
	ResumeText     string    `json:"resume_text"`
	JobDescription string    `json:"job_description"`
}

// OptimizeResumeTask rewrites a resume toward a job description and
// stores the result on the originating analysis.
type OptimizeResumeTask struct {
	taskID   uuid.UUID
	userID   uuid.UUID
	payload  optimizePayload
	tasks    store.TaskStore
	analyses store.AnalysisStore
	invoker  generation.Invoker
	logger   *slog.Logger
}

// NewOptimizeResumeTask creates a resume optimization task.
func NewOptimizeResumeTask(
	taskID, userID uuid.UUID,
	payload optimizePayload,
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) (*OptimizeResumeTask, error) {
	if tasks == nil {
		return nil, ErrNilTaskStore
	}
	if analyses == nil {
		return nil, ErrNilAnalysisStore
	}
	if invoker == nil {
		return nil, ErrNilInvoker
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if taskID == uuid.Nil || userID == uuid.Nil {
		return nil, errors.New("task ID and user ID cannot be empty")
	}
	if payload.AnalysisID == uuid.Nil {
		return nil, errors.New("analysis ID cannot be empty")
	}
	if payload.ResumeText == "" || payload.JobDescription == "" {
		return nil, errors.New("resume text and job description cannot be empty")
	}

	return &OptimizeResumeTask{
		taskID:   taskID,
		userID:   userID,
		payload:  payload,
		tasks:    tasks,
		analyses: analyses,
		invoker:  invoker,
		logger:   logger.With("task_type", domain.TaskTypeOptimizeResume, "task_id", taskID),
	}, nil
}

// ID returns the tracked-task row identifier.
func (t *OptimizeResumeTask) ID() uuid.UUID { return t.taskID }

// UserID returns the owner of the task.
func (t *OptimizeResumeTask) UserID() uuid.UUID { return t.userID }

// Type returns the task type identifier.
func (t *OptimizeResumeTask) Type() domain.TaskType { return domain.TaskTypeOptimizeResume }

// Execute fetches the analysis, generates the optimized resume text, and
// persists it onto the analysis record.
func (t *OptimizeResumeTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	t.logger.Info("starting resume optimization")

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 10, "fetching"); err != nil {
		return nil, err
	}

	analysis, err := t.analyses.GetByID(ctx, t.payload.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis: %w", err)
	}
	if analysis.UserID != t.userID {
		// Foreign analyses read as missing, same masking as the API.
		return nil, fmt.Errorf("fetch analysis: %w", store.ErrAnalysisNotFound)
	}

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 30, "generating"); err != nil {
		return nil, err
	}

	system, user := optimizePrompts(t.payload.ResumeText, t.payload.JobDescription)
	optimized, err := t.invoker.Invoke(ctx, system, user, generation.InvokeOptions{})
	if err != nil {
		return nil, fmt.Errorf("optimization generation: %w", err)
	}

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 80, "persisting"); err != nil {
		return nil, err
	}

	analysis.OptimizedResume = optimized
	if err := t.analyses.Update(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist optimized resume: %w", err)
	}

	t.logger.Info("resume optimization completed", "analysis_id", analysis.ID)
	return &analysis.ID, nil
}

// OptimizeResumeTaskFactory builds OptimizeResumeTask instances from
// task request events.
type OptimizeResumeTaskFactory struct {
	tasks    store.TaskStore
	analyses store.AnalysisStore
	invoker  generation.Invoker
	logger   *slog.Logger
}

// NewOptimizeResumeTaskFactory creates the factory with its shared
// dependencies.
func NewOptimizeResumeTaskFactory(
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) *OptimizeResumeTaskFactory {
	return &OptimizeResumeTaskFactory{tasks: tasks, analyses: analyses, invoker: invoker, logger: logger}
}

// Build implements the Factory interface.
func (f *OptimizeResumeTaskFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	var payload optimizePayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, fmt.Errorf("invalid optimize payload: %w", err)
	}
	return NewOptimizeResumeTask(event.TaskID, event.UserID, payload, f.tasks, f.analyses, f.invoker, f.logger)
}
