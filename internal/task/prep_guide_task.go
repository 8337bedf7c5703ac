package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/generation"
	"github.com/pathwise/pathwise-api/internal/store"
)

// Dependency validation errors shared by the task constructors.
var (
	ErrNilTaskStore     = errors.New("task store cannot be nil")
	ErrNilGuideStore    = errors.New("guide store cannot be nil")
	ErrNilAnalysisStore = errors.New("analysis store cannot be nil")
	ErrNilInvoker       = errors.New("invoker cannot be nil")
	ErrNilLogger        = errors.New("logger cannot be nil")
)

// prepGuidePayload is the serialized task payload for interview-prep jobs.
type prepGuidePayload struct {
	GuideID        uuid.UUID `json:"guide_id"`
	CompanyName    string    `json:"company_name"`
	RoleTitle      string    `json:"role_title"`
	JobDescription string    `json:"job_description"`
}

// guideStage is one sequential step of the prep-guide pipeline.
type guideStage struct {
	section  string
	progress int
}

// The first five stages run sequentially; the sixth fans out into the
// questions and strategy sections in parallel.
var guideStages = []guideStage{
	{domain.SectionCompanyResearch, 15},
	{domain.SectionRoleAnalysis, 30},
	{domain.SectionTechnicalPrep, 45},
	{domain.SectionBehavioralFramework, 60},
	{domain.SectionStoryMapping, 75},
}

const finalStageProgress = 90

// PrepGuideTask generates an interview prep guide section by section.
// Every section is persisted the moment it is generated, so a cancelled
// or failed run leaves all finished sections readable on the guide.
type PrepGuideTask struct {
	taskID  uuid.UUID
	userID  uuid.UUID
	payload prepGuidePayload
	tasks   store.TaskStore
	guides  store.GuideStore
	invoker generation.Invoker
	logger  *slog.Logger
}

// NewPrepGuideTask creates a prep-guide pipeline task bound to an
// existing tracked-task row and guide document.
func NewPrepGuideTask(
	taskID, userID uuid.UUID,
	payload prepGuidePayload,
	tasks store.TaskStore,
	guides store.GuideStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) (*PrepGuideTask, error) {
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
	if payload.GuideID == uuid.Nil {
		return nil, errors.New("guide ID cannot be empty")
	}

	return &PrepGuideTask{
		taskID:  taskID,
		userID:  userID,
		payload: payload,
		tasks:   tasks,
		guides:  guides,
		invoker: invoker,
		logger:  logger.With("task_type", domain.TaskTypeInterviewPrep, "guide_id", payload.GuideID),
	}, nil
}

// ID returns the tracked-task row identifier.
func (t *PrepGuideTask) ID() uuid.UUID { return t.taskID }

// UserID returns the owner of the task.
func (t *PrepGuideTask) UserID() uuid.UUID { return t.userID }

// Type returns the task type identifier.
func (t *PrepGuideTask) Type() domain.TaskType { return domain.TaskTypeInterviewPrep }

// Execute runs the six-stage pipeline. Between stages it checks both
// the context and the guide's persisted status, so an external cancel
// takes effect at the next checkpoint with all earlier sections kept.
func (t *PrepGuideTask) Execute(ctx context.Context) (*uuid.UUID, error) {
	guideID := t.payload.GuideID
	t.logger.Info("starting prep guide pipeline")

	if err := t.guides.UpdateStatus(ctx, guideID, domain.GuideStatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("failed to mark guide processing: %w", err)
	}

	for _, stage := range guideStages {
		if err := t.runStage(ctx, stage.section, stage.progress); err != nil {
			return nil, t.settleStageError(ctx, stage.section, err)
		}

		if err := t.checkpoint(ctx); err != nil {
			return nil, t.settleStageError(ctx, stage.section, err)
		}
	}

	// Final stage: questions and strategy are independent sections with
	// disjoint keys, generated concurrently.
	if err := t.runFinalStage(ctx); err != nil {
		return nil, t.settleStageError(ctx, domain.SectionQuestions, err)
	}

	if err := t.checkpoint(ctx); err != nil {
		return nil, t.settleStageError(ctx, domain.SectionStrategy, err)
	}

	if err := t.guides.UpdateStatus(ctx, guideID, domain.GuideStatusCompleted, ""); err != nil {
		if errors.Is(err, store.ErrTaskFinalized) {
			// Guide was cancelled or failed between the last checkpoint
			// and the completion write.
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("failed to mark guide completed: %w", err)
	}

	t.logger.Info("prep guide pipeline completed")
	return &guideID, nil
}

// runStage generates one section, persists it, and advances progress on
// both the guide and the tracked task.
func (t *PrepGuideTask) runStage(ctx context.Context, section string, progress int) error {
	t.logger.Info("running pipeline stage", "section", section, "progress", progress)

	system, user := guideStagePrompts(section, t.payload)
	content, err := t.invoker.Invoke(ctx, system, user, generation.InvokeOptions{})
	if err != nil {
		return fmt.Errorf("generate %s: %w", section, err)
	}

	if err := t.guides.SetSection(ctx, t.payload.GuideID, section, content); err != nil {
		return fmt.Errorf("persist %s: %w", section, err)
	}

	if err := t.guides.UpdateProgress(ctx, t.payload.GuideID, progress, section); err != nil {
		return fmt.Errorf("update guide progress: %w", err)
	}
	return progressCheckpoint(ctx, t.tasks, t.taskID, progress, section)
}

// runFinalStage generates the questions and strategy sections in
// parallel. The goroutines share no state: each writes its own section.
func (t *PrepGuideTask) runFinalStage(ctx context.Context) error {
	sections := []string{domain.SectionQuestions, domain.SectionStrategy}
	errs := make([]error, len(sections))

	var wg sync.WaitGroup
	for i, section := range sections {
		wg.Add(1)
		go func(i int, section string) {
			defer wg.Done()

			system, user := guideStagePrompts(section, t.payload)
			content, err := t.invoker.Invoke(ctx, system, user, generation.InvokeOptions{})
			if err != nil {
				errs[i] = fmt.Errorf("generate %s: %w", section, err)
				return
			}
			if err := t.guides.SetSection(ctx, t.payload.GuideID, section, content); err != nil {
				errs[i] = fmt.Errorf("persist %s: %w", section, err)
			}
		}(i, section)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if err := t.guides.UpdateProgress(ctx, t.payload.GuideID, finalStageProgress, domain.SectionStrategy); err != nil {
		return fmt.Errorf("update guide progress: %w", err)
	}
	return progressCheckpoint(ctx, t.tasks, t.taskID, finalStageProgress, domain.SectionStrategy)
}

// checkpoint decides whether the pipeline may continue: the context must
// be live and the guide must not have been moved to a terminal state by
// an external cancel.
func (t *PrepGuideTask) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		t.logger.Info("pipeline cancelled by context")
		return ErrCancelled
	}

	status, err := t.guides.GetStatus(ctx, t.payload.GuideID)
	if err != nil {
		if errors.Is(err, store.ErrGuideNotFound) {
			return ErrCancelled
		}
		return fmt.Errorf("checkpoint status read: %w", err)
	}

	if status == domain.GuideStatusCancelled || status == domain.GuideStatusFailed {
		t.logger.Info("pipeline stopped at checkpoint", "guide_status", status)
		return ErrCancelled
	}

	return nil
}

// settleStageError records a stage failure on the guide. Cancellation
// passes through untouched; already-written sections stay either way.
func (t *PrepGuideTask) settleStageError(ctx context.Context, section string, execErr error) error {
	// Terminal guide writes still need to land after a context cancel.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if errors.Is(execErr, ErrCancelled) {
		if err := t.guides.UpdateStatus(ctx, t.payload.GuideID, domain.GuideStatusCancelled, ""); err != nil &&
			!errors.Is(err, store.ErrTaskFinalized) && !errors.Is(err, store.ErrGuideNotFound) {
			t.logger.Error("failed to mark guide cancelled", "error", err)
		}
		return ErrCancelled
	}

	msg := fmt.Sprintf("stage %s: %v", section, execErr)
	if err := t.guides.UpdateStatus(ctx, t.payload.GuideID, domain.GuideStatusFailed, msg); err != nil &&
		!errors.Is(err, store.ErrTaskFinalized) && !errors.Is(err, store.ErrGuideNotFound) {
		t.logger.Error("failed to mark guide failed", "error", err)
	}

	return fmt.Errorf("%s", msg)
}

// PrepGuideTaskFactory builds PrepGuideTask instances from task request
// events.
type PrepGuideTaskFactory struct {
	tasks   store.TaskStore
	guides  store.GuideStore
	invoker generation.Invoker
	logger  *slog.Logger
}

// NewPrepGuideTaskFactory creates the factory with its shared
// dependencies.
func NewPrepGuideTaskFactory(
	tasks store.TaskStore,
	guides store.GuideStore,
	invoker generation.Invoker,
	logger *slog.Logger,
) *PrepGuideTaskFactory {
	return &PrepGuideTaskFactory{tasks: tasks, guides: guides, invoker: invoker, logger: logger}
}

// Build implements the Factory interface.
func (f *PrepGuideTaskFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	var payload prepGuidePayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, fmt.Errorf("invalid prep guide payload: %w", err)
	}
	return NewPrepGuideTask(event.TaskID, event.UserID, payload, f.tasks, f.guides, f.invoker, f.logger)
}
