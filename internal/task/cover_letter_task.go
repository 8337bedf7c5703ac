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

// SectionCoverLetter is the single section key used by cover-letter
// documents stored through the guide store.
const SectionCoverLetter = "cover_letter"

// coverLetterPayload is the serialized task payload for cover letters.
type coverLetterPayload struct {
	ApplicationID  uuid.UUID `json:"application_id"`
	CompanyName    string    `json:"company_name"`
	RoleTitle      string    `json:"role_title"`
	JobDescription string    `json:"job_description"`
	ResumeText     string    `json:"resume_text"`
}

// CoverLetterTask generates a cover letter in a single stage. The result
// is stored as a one-section guide document, reusing the guide store's
// progressive-section model for a degenerate single-section case.
type CoverLetterTask struct {
	taskID  uuid.UUID
	userID  uuid.UUID
	payload coverLetterPayload
	tasks   store.TaskStore
	guides  store.GuideStore
	invoker generation.Invoker
	logger  *slog.Logger
}

// NewCoverLetterTask creates a cover letter generation task.
func NewCoverLetterTask(
	taskID, userID uuid.UUID,
	payload coverLetterPayload,
	tasks store.TaskStore,
	guides store.GuideStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) (*CoverLetterTask, error) {
	if tasks == nil {
		return nil, ErrNilTaskStore
	}
	if guides == nil {
		return nil, ErrNilGuideStore
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
	if payload.ApplicationID == uuid.Nil {
		return nil, errors.New("application ID cannot be empty")
	}
	if payload.CompanyName == "" || payload.ResumeText == "" {
		return nil, errors.New("company name and resume text cannot be empty")
	}

	return &CoverLetterTask{
		taskID:  taskID,
		userID:  userID,
		payload: payload,
		tasks:   tasks,
		guides:  guides,
		invoker: invoker,
		logger:  logger.With("task_type", domain.TaskTypeCoverLetter, "task_id", taskID),
	}, nil
}

// ID returns the tracked-task row identifier.
func (t *CoverLetterTask) ID() uuid.UUID { return t.taskID }

// UserID returns the owner of the task.
func (t *CoverLetterTask) UserID() uuid.UUID { return t.userID }

// Type returns the task type identifier.
func (t *CoverLetterTask) Type() domain.TaskType { return domain.TaskTypeCoverLetter }

// Execute generates the letter and persists it as a completed
// one-section document.
func (t *CoverLetterTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	t.logger.Info("starting cover letter generation")

	if err := progressCheckpoint(ctx, t.tasks, t.taskID, 20, "generating"); err != nil {
		return nil, err
	}

	system, user := coverLetterPrompts(
		t.payload.ResumeText,
		t.payload.CompanyName,
		t.payload.RoleTitle,
		t.payload.JobDescription,
	)
	letter, err := t.invoker.Invoke(ctx, system, user, generation.InvokeOptions{})
	if err != nil {
		return nil, fmt.Errorf("cover letter generation: %w", err)
	}

	doc, err := domain.NewPrepGuide(
		t.userID,
		t.payload.ApplicationID,
		t.payload.CompanyName,
		t.payload.RoleTitle,
		t.payload.JobDescription,
	)
	if err != nil {
		return nil, fmt.Errorf("build cover letter document: %w", err)
	}
	doc.Sections[SectionCoverLetter] = letter
	doc.Status = domain.GuideStatusCompleted
	doc.Progress = 100
	doc.CurrentStep = SectionCoverLetter

	if err := t.guides.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist cover letter: %w", err)
	}

	t.logger.Info("cover letter generation completed", "document_id", doc.ID)
	return &doc.ID, nil
}

// CoverLetterTaskFactory builds CoverLetterTask instances from task
// request events.
type CoverLetterTaskFactory struct {
	tasks   store.TaskStore
	guides  store.GuideStore
	invoker generation.Invoker
	logger  *slog.Logger
}

// NewCoverLetterTaskFactory creates the factory with its shared
// dependencies.
func NewCoverLetterTaskFactory(
	tasks store.TaskStore,
	guides store.GuideStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) *CoverLetterTaskFactory {
	return &CoverLetterTaskFactory{tasks: tasks, guides: guides, invoker: invoker, logger: logger}
}

// Build implements the Factory interface.
func (f *CoverLetterTaskFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	var payload coverLetterPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, fmt.Errorf("invalid cover letter payload: %w", err)
	}
	return NewCoverLetterTask(event.TaskID, event.UserID, payload, f.tasks, f.guides, f.invoker, f.logger)
}
