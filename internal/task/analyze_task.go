package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/generation"
	"github.com/pathwise/pathwise-api/internal/score"
	"github.com/pathwise/pathwise-api/internal/store"
)

// analyzePayload is the serialized task payload for resume analysis.
type analyzePayload struct {
	ResumeID       uuid.UUID `json:"resume_id"`
	ResumeText     string    `json:"resume_text"`
	JobDescription string    `json:"job_description"`
	CompanyName    string    `json:"company_name"`
	JobTitle       string    `json:"job_title"`
}

// analysisResponse is the JSON shape the model is instructed to return.
type analysisResponse struct {
	MatchedSkills  []domain.SkillMatch    `json:"matched_skills"`
	PartialMatches []domain.SkillMatch    `json:"partial_matches"`
	MissingSkills  []domain.SkillMatch    `json:"missing_skills"`
	KeywordDensity int                    `json:"keyword_density"`
	Experience     domain.ExperienceMatch `json:"experience_match"`
}

// AnalyzeResumeTask compares a resume against a job description, scores
// the match, and persists the analysis with its baseline fields.
type AnalyzeResumeTask struct {
	taskID   uuid.UUID
	userID   uuid.UUID
	payload  analyzePayload
	tasks    store.TaskStore
	analyses store.AnalysisStore
	invoker  generation.Invoker
	logger   *slog.Logger
}

// NewAnalyzeResumeTask creates a resume analysis task.
func NewAnalyzeResumeTask(
	taskID, userID uuid.UUID,
	payload analyzePayload,
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) (*AnalyzeResumeTask, error) {
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
	if payload.ResumeText == "" || payload.JobDescription == "" {
		return nil, errors.New("resume text and job description cannot be empty")
	}

	return &AnalyzeResumeTask{
		taskID:   taskID,
		userID:   userID,
		payload:  payload,
		tasks:    tasks,
		analyses: analyses,
		invoker:  invoker,
		logger:   logger.With("task_type", domain.TaskTypeAnalyzeResume, "task_id", taskID),
	}, nil
}

// ID returns the tracked-task row identifier.
func (t *AnalyzeResumeTask) ID() uuid.UUID { return t.taskID }

// UserID returns the owner of the task.
func (t *AnalyzeResumeTask) UserID() uuid.UUID { return t.userID }

// Type returns the task type identifier.
func (t *AnalyzeResumeTask) Type() domain.TaskType { return domain.TaskTypeAnalyzeResume }

// Execute runs one JSON-mode invocation, scores the parsed result, and
// persists the analysis. The baseline score and baseline skill count are
// captured here, exactly once; later skill additions calibrate against
// them without ever recomputing them.
func (t *AnalyzeResumeTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	t.logger.Info("starting resume analysis")

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 10, "analyzing"); err != nil {
		return nil, err
	}

	system, user := analyzePrompts(t.payload.ResumeText, t.payload.JobDescription)
	raw, err := t.invoker.Invoke(ctx, system, user, generation.InvokeOptions{JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("analysis generation: %w", err)
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(generation.SanitizeJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: analysis response: %v", generation.ErrStructuringFailure, err)
	}

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 70, "scoring"); err != nil {
		return nil, err
	}

	analysis, err := domain.NewMatchAnalysis(t.userID, t.payload.ResumeID, t.payload.CompanyName, t.payload.JobTitle)
	if err != nil {
		return nil, fmt.Errorf("build analysis: %w", err)
	}
	analysis.MatchedSkills = parsed.MatchedSkills
	analysis.PartialMatches = parsed.PartialMatches
	analysis.MissingSkills = parsed.MissingSkills
	analysis.KeywordDensity = parsed.KeywordDensity
	analysis.Experience = parsed.Experience

	analysis.Score = score.CalculateScore(analysis)
	analysis.BaselineScore = analysis.Score
	analysis.BaselineTotalNeeded = score.TotalSkillsNeeded(analysis)

	if err := t.analyses.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	t.logger.Info("resume analysis completed",
		"analysis_id", analysis.ID,
		"match_score", analysis.Score)

	return &analysis.ID, nil
}

// AnalyzeResumeTaskFactory builds AnalyzeResumeTask instances from task
// request events.
type AnalyzeResumeTaskFactory struct {
	tasks    store.TaskStore
	analyses store.AnalysisStore
	invoker  generation.Invoker
	logger   *slog.Logger
}

// NewAnalyzeResumeTaskFactory creates the factory with its shared
// dependencies.
func NewAnalyzeResumeTaskFactory(
	tasks store.TaskStore,
	analyses store.AnalysisStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) *AnalyzeResumeTaskFactory {
	return &AnalyzeResumeTaskFactory{tasks: tasks, analyses: analyses, invoker: invoker, logger: logger}
}

// Build implements the Factory interface.
func (f *AnalyzeResumeTaskFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	var payload analyzePayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, fmt.Errorf("invalid analyze payload: %w", err)
	}
	return NewAnalyzeResumeTask(event.TaskID, event.UserID, payload, f.tasks, f.analyses, f.invoker, f.logger)
}
