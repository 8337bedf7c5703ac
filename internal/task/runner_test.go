package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

func testRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:  2,
		QueueSize:    10,
		StaleTaskAge: 10 * time.Minute,
	}
}

// waitForStatus polls the mock store until the task reaches the wanted
// status or the deadline passes.
func waitForStatus(t *testing.T, mockStore *MockTaskStore, id uuid.UUID, want domain.TaskStatus) *domain.TrackedTask {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			task, err := mockStore.GetByID(context.Background(), id)
			require.NoError(t, err)
			t.Fatalf("task never reached %s, still %s", want, task.Status)
			return nil
		case <-time.After(5 * time.Millisecond):
			task, err := mockStore.GetByID(context.Background(), id)
			require.NoError(t, err)
			if task.Status == want {
				return task
			}
		}
	}
}

func TestTaskRunner_CompletesTask(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	resultID := uuid.New()
	task := NewMockTask(domain.TaskTypeAnalyzeResume)
	task.ExecuteFn = func(ctx context.Context) (*uuid.UUID, error) {
		return &resultID, nil
	}

	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))
	require.NoError(t, runner.Submit(context.Background(), task))

	settled := waitForStatus(t, mockStore, task.ID(), domain.TaskStatusCompleted)
	require.NotNil(t, settled.ResultID)
	assert.Equal(t, resultID, *settled.ResultID)
	assert.Equal(t, 1, task.ExecuteCount())
}

func TestTaskRunner_FailsTask(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())

	var handlerCalled bool
	done := make(chan struct{})
	runner.SetErrorHandler(func(task Task, err error) {
		handlerCalled = true
		close(done)
	})

	require.NoError(t, runner.Start())
	defer runner.Stop()

	task := NewMockTask(domain.TaskTypeOptimizeResume)
	task.ExecuteFn = func(ctx context.Context) (*uuid.UUID, error) {
		return nil, errors.New("provider exploded")
	}

	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))
	require.NoError(t, runner.Submit(context.Background(), task))

	settled := waitForStatus(t, mockStore, task.ID(), domain.TaskStatusFailed)
	assert.Equal(t, "provider exploded", settled.Error)

	<-done
	assert.True(t, handlerCalled)
}

func TestTaskRunner_CancelledTask(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	task := NewMockTask(domain.TaskTypeInterviewPrep)
	task.ExecuteFn = func(ctx context.Context) (*uuid.UUID, error) {
		return nil, ErrCancelled
	}

	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))
	require.NoError(t, runner.Submit(context.Background(), task))

	waitForStatus(t, mockStore, task.ID(), domain.TaskStatusCancelled)
}

func TestTaskRunner_SkipsUnclaimableTask(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())

	task := NewMockTask(domain.TaskTypeAnalyzeResume)

	// Row already completed by another executor: the claim must lose and
	// the terminal state must survive untouched.
	row := task.TrackedRow()
	require.NoError(t, mockStore.Create(context.Background(), row))
	resultID := uuid.New()
	require.NoError(t, mockStore.Claim(context.Background(), row.ID))
	require.NoError(t, mockStore.Complete(context.Background(), row.ID, &resultID))

	require.NoError(t, runner.Submit(context.Background(), task))

	// Give workers time to pick the task up, then stop and verify.
	time.Sleep(50 * time.Millisecond)
	runner.Stop()

	assert.Equal(t, 0, task.ExecuteCount(), "unclaimable task must never execute")

	settled, err := mockStore.GetByID(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, settled.Status)
	require.NotNil(t, settled.ResultID)
	assert.Equal(t, resultID, *settled.ResultID)
}

func TestTaskRunner_AtMostOneCompletion(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	task := NewMockTask(domain.TaskTypeAnalyzeResume)
	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))

	// Submitting the same task twice models duplicate event delivery.
	// The claim lets exactly one execution through.
	require.NoError(t, runner.Submit(context.Background(), task))
	require.NoError(t, runner.Submit(context.Background(), task))

	waitForStatus(t, mockStore, task.ID(), domain.TaskStatusCompleted)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, task.ExecuteCount(), "claim must allow exactly one execution")
}

func TestTaskRunner_StartupSweepFailsStaleTasks(t *testing.T) {
	mockStore := NewMockTaskStore()

	stale := NewMockTask(domain.TaskTypeInterviewPrep)
	row := stale.TrackedRow()
	row.CreatedAt = time.Now().UTC().Add(-30 * time.Minute)
	require.NoError(t, mockStore.Create(context.Background(), row))

	fresh := NewMockTask(domain.TaskTypeAnalyzeResume)
	require.NoError(t, mockStore.Create(context.Background(), fresh.TrackedRow()))

	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	runner.Stop()

	settled, err := mockStore.GetByID(context.Background(), stale.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, settled.Status)
	assert.Equal(t, StaleTaskError, settled.Error)

	untouched, err := mockStore.GetByID(context.Background(), fresh.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, untouched.Status)
}

func TestTaskRunner_CancelAbortsInFlight(t *testing.T) {
	mockStore := NewMockTaskStore()
	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	started := make(chan struct{})
	task := NewMockTask(domain.TaskTypeInterviewPrep)
	task.ExecuteFn = func(ctx context.Context) (*uuid.UUID, error) {
		close(started)
		<-ctx.Done()
		return nil, ErrCancelled
	}

	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))
	require.NoError(t, runner.Submit(context.Background(), task))

	<-started
	runner.Cancel(task.ID())

	waitForStatus(t, mockStore, task.ID(), domain.TaskStatusCancelled)
}

func TestTaskRunner_TerminalWriteLoss(t *testing.T) {
	mockStore := NewMockTaskStore()

	// Fail writes lose to a concurrent finalization; the runner must
	// treat that as settled, not as an error.
	mockStore.FailFn = func(ctx context.Context, id uuid.UUID, errMsg string) error {
		return store.ErrTaskFinalized
	}

	runner := NewTaskRunner(mockStore, testRunnerConfig(), testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	done := make(chan struct{})
	runner.SetErrorHandler(func(task Task, err error) { close(done) })

	task := NewMockTask(domain.TaskTypeCoverLetter)
	task.ExecuteFn = func(ctx context.Context) (*uuid.UUID, error) {
		return nil, errors.New("boom")
	}

	require.NoError(t, mockStore.Create(context.Background(), task.TrackedRow()))
	require.NoError(t, runner.Submit(context.Background(), task))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("error handler never called")
	}
}
