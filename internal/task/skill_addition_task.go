package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/score"
	"github.com/pathwise/pathwise-api/internal/store"
)

// skillAdditionPayload is the serialized task payload for skill additions.
type skillAdditionPayload struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	SkillName  string    `json:"skill_name"`
}

// SkillAdditionTask moves one named skill into the matched set of an
// existing analysis and recalibrates the score against the analysis
// baselines. The new score is always strictly greater than the old one
// while the baseline is below 100.
type SkillAdditionTask struct {
	taskID   uuid.UUID
	userID   uuid.UUID
	payload  skillAdditionPayload
	tasks    store.TaskStore
	analyses store.AnalysisStore
	logger   *slog.Logger
}

// NewSkillAdditionTask creates a skill addition task.
func NewSkillAdditionTask(
	taskID, userID uuid.UUID,
	payload skillAdditionPayload,
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	logger *slog.Logger,
) (*SkillAdditionTask, error) {
	if tasks == nil {
		return nil, ErrNilTaskStore
	}
	if analyses == nil {
		return nil, ErrNilAnalysisStore
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
	if payload.SkillName == "" {
		return nil, errors.New("skill name cannot be empty")
	}

	return &SkillAdditionTask{
		taskID:   taskID,
		userID:   userID,
		payload:  payload,
		tasks:    tasks,
		analyses: analyses,
		logger:   logger.With("task_type", domain.TaskTypeAddSkill, "task_id", taskID),
	}, nil
}

// ID returns the tracked-task row identifier.
func (t *SkillAdditionTask) ID() uuid.UUID { return t.taskID }

// UserID returns the owner of the task.
func (t *SkillAdditionTask) UserID() uuid.UUID { return t.userID }

// Type returns the task type identifier.
func (t *SkillAdditionTask) Type() domain.TaskType { return domain.TaskTypeAddSkill }

// Execute moves the skill, applies the calibrated score increase, and
// persists the analysis. Baseline fields are read, never written.
func (t *SkillAdditionTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	t.logger.Info("starting skill addition", "skill", t.payload.SkillName)

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 20, "calibrating"); err != nil {
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

	moved, err := analysis.AddSkill(t.payload.SkillName)
	if err != nil {
		return nil, fmt.Errorf("add skill %q: %w", t.payload.SkillName, err)
	}

	oldScore := analysis.Score
	analysis.Score = score.ApplySkillAddition(
		analysis.Score,
		analysis.BaselineScore,
		analysis.BaselineTotalNeeded,
		1,
	)

	if err := t.analyses.Update(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	t.logger.Info("skill addition completed",
		"skill", moved.Name,
		"old_score", oldScore,
		"new_score", analysis.Score)

	return &analysis.ID, nil
}

// SkillAdditionTaskFactory builds SkillAdditionTask instances from task
// request events.
type SkillAdditionTaskFactory struct {
	tasks    store.TaskStore
	analyses store.AnalysisStore
	logger   *slog.Logger
}

// NewSkillAdditionTaskFactory creates the factory with its shared
// dependencies.
func NewSkillAdditionTaskFactory(
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	logger *slog.Logger,
) *SkillAdditionTaskFactory {
	return &SkillAdditionTaskFactory{tasks: tasks, analyses: analyses, logger: logger}
}

// Build implements the Factory interface.
func (f *SkillAdditionTaskFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	var payload skillAdditionPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, fmt.Errorf("invalid skill addition payload: %w", err)
	}
	return NewSkillAdditionTask(event.TaskID, event.UserID, payload, f.tasks, f.analyses, f.logger)
}
