package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/config"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/generation"
	"github.com/pathwise/pathwise-api/internal/ledger"
	"github.com/pathwise/pathwise-api/internal/platform/gemini"
	"github.com/pathwise/pathwise-api/internal/platform/openai"
	"github.com/pathwise/pathwise-api/internal/platform/postgres"
	"github.com/pathwise/pathwise-api/internal/service/auth"
	"github.com/pathwise/pathwise-api/internal/store"
	"github.com/pathwise/pathwise-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	userStore     store.UserStore
	taskStore     store.TaskStore
	guideStore    store.GuideStore
	analysisStore store.AnalysisStore
	ledgerStore   store.LedgerStore

	// Services
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	passwordHasher   auth.PasswordHasher
	invoker          generation.Invoker
	ledgerService    *ledger.Service

	// Event system and task handling
	notifier     *task.Notifier
	eventEmitter events.EventEmitter
	taskRunner   *task.TaskRunner
	picker       *task.QueuePicker
	reaper       *task.Reaper

	cancelFirehose func()
}

// executionCanceller aborts in-flight execution on both local executors.
// Whichever one holds the task reacts; the other call is a no-op.
type executionCanceller struct {
	runner *task.TaskRunner
	picker *task.QueuePicker
}

func (c *executionCanceller) Cancel(taskID uuid.UUID) {
	c.runner.Cancel(taskID)
	c.picker.CancelLocal(taskID)
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.passwordVerifier = auth.NewBcryptVerifier()
	app.passwordHasher = auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	// Stores. The task store is wrapped so every mutation publishes a
	// snapshot: SSE streams and the queue picker both feed off the
	// notifier.
	app.notifier = task.NewNotifier(logger)
	app.userStore = postgres.NewPostgresUserStore(db, logger)
	app.taskStore = task.NewNotifyingTaskStore(postgres.NewPostgresTaskStore(db, logger), app.notifier)
	app.guideStore = postgres.NewPostgresGuideStore(db, logger)
	app.analysisStore = postgres.NewPostgresAnalysisStore(db, logger)
	app.ledgerStore = postgres.NewPostgresLedgerStore(db, logger)

	app.ledgerService, err = ledger.NewService(db, app.ledgerStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger service: %w", err)
	}

	// The runner sweeps server-wide at startup; this reaper serves the
	// per-user sweep the task read endpoint performs.
	app.reaper = task.NewReaper(app.taskStore, cfg.Task.StaleTaskAge, logger)

	app.invoker, err = setupInvoker(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation invoker: %w", err)
	}

	registry := task.NewFactoryRegistry()
	registry.Register(domain.TaskTypeAnalyzeResume,
		task.NewAnalyzeResumeTaskFactory(app.taskStore, app.analysisStore, app.invoker, logger))
	registry.Register(domain.TaskTypeOptimizeResume,
		task.NewOptimizeResumeTaskFactory(app.taskStore, app.analysisStore, app.invoker, logger))
	registry.Register(domain.TaskTypeAddSkill,
		task.NewSkillAdditionTaskFactory(app.taskStore, app.analysisStore, logger))
	registry.Register(domain.TaskTypeInterviewPrep,
		task.NewPrepGuideTaskFactory(app.taskStore, app.guideStore, app.invoker, logger))
	registry.Register(domain.TaskTypeCoverLetter,
		task.NewCoverLetterTaskFactory(app.taskStore, app.guideStore, app.invoker, logger))

	app.taskRunner, err = setupTaskRunner(app)
	if err != nil {
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(task.NewDispatchEventHandler(registry, app.taskRunner, logger))
	app.eventEmitter = emitter

	app.picker = task.NewQueuePicker(
		app.taskStore,
		app.pickerExecutor(registry),
		func(subject string, t domain.TrackedTask, err error) {
			logger.Warn("picker task failed",
				"subject", subject,
				"task_id", t.ID,
				"task_type", t.Type,
				"error", err)
		},
		logger,
	)

	// Feed every published snapshot to the picker so it can race the
	// runner for queued tasks.
	snapshots, cancelFirehose := app.notifier.SubscribeAll()
	app.cancelFirehose = cancelFirehose
	go func() {
		for snapshot := range snapshots {
			app.picker.OnSnapshot(ctx, snapshot)
		}
	}()

	logger.Info("Application initialized successfully")
	return app, nil
}

// pickerExecutor bridges picker-claimed task snapshots into the same
// factory-built execution path the runner uses. The picker has already
// claimed the row when this runs.
func (app *application) pickerExecutor(registry *task.FactoryRegistry) task.Executor {
	return func(ctx context.Context, row domain.TrackedTask) error {
		event, err := events.NewTaskRequestEvent(row.ID, row.UserID, row.Type, row.Payload)
		if err != nil {
			return fmt.Errorf("failed to build task event from snapshot: %w", err)
		}

		t, err := registry.Build(event)
		if err != nil {
			return fmt.Errorf("failed to build task: %w", err)
		}

		resultID, err := t.Execute(ctx)
		if err != nil {
			if errors.Is(err, task.ErrCancelled) {
				// Cancelled at a checkpoint: the cancelled terminal
				// state usually landed already via the API. Tolerate
				// races either way.
				if cancelErr := app.taskStore.Cancel(ctx, row.ID); cancelErr != nil &&
					!errors.Is(cancelErr, store.ErrTaskFinalized) && !errors.Is(cancelErr, store.ErrTaskNotFound) {
					return cancelErr
				}
				return nil
			}
			return err
		}

		if err := app.taskStore.Complete(ctx, row.ID, resultID); err != nil &&
			!errors.Is(err, store.ErrTaskFinalized) {
			return fmt.Errorf("failed to mark task completed: %w", err)
		}
		return nil
	}
}

// setupInvoker builds the generation invoker chain: Gemini as the
// primary provider, with OpenAI as an optional fallback when a key is
// configured.
func setupInvoker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generation.Invoker, error) {
	primary, err := gemini.NewInvoker(ctx, logger.With("component", "gemini_invoker"), cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini invoker: %w", err)
	}

	var fallback generation.Invoker
	if cfg.LLM.OpenAIAPIKey != "" {
		openaiInvoker, err := openai.NewInvoker(logger.With("component", "openai_invoker"), cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI invoker: %w", err)
		}
		fallback = openaiInvoker
		logger.Info("OpenAI fallback invoker enabled")
	}

	return generation.NewFallbackInvoker(primary, fallback, logger)
}

// setupTaskRunner initializes and starts the background task processor.
// Start performs the stale-task sweep before accepting work.
func setupTaskRunner(app *application) (*task.TaskRunner, error) {
	taskRunner := task.NewTaskRunner(app.taskStore, task.TaskRunnerConfig{
		WorkerCount:  app.config.Task.WorkerCount,
		QueueSize:    app.config.Task.QueueSize,
		StaleTaskAge: app.config.Task.StaleTaskAge,
	}, app.logger)

	taskRunner.SetErrorHandler(func(t task.Task, err error) {
		app.logger.Warn("task failed",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
	})

	if err := taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	return taskRunner, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.cancelFirehose != nil {
		app.cancelFirehose()
	}

	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
}
