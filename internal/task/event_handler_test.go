package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
)

func newFactoryEvent(t *testing.T, taskType domain.TaskType, payload any) *events.TaskRequestEvent {
	t.Helper()

	task := NewMockTask(taskType)
	event, err := events.NewTaskRequestEvent(task.TaskID, task.TaskUserID, taskType, payload)
	require.NoError(t, err)
	return event
}

// mockSubmitter records submitted tasks.
type mockSubmitter struct {
	submitted []Task
	err       error
}

func (m *mockSubmitter) Submit(ctx context.Context, task Task) error {
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, task)
	return nil
}

// mockFactory returns a fixed task or error.
type mockFactory struct {
	task Task
	err  error
}

func (m *mockFactory) Build(event *events.TaskRequestEvent) (Task, error) {
	return m.task, m.err
}

func TestFactoryRegistry(t *testing.T) {
	registry := NewFactoryRegistry()
	built := NewMockTask(domain.TaskTypeAnalyzeResume)
	registry.Register(domain.TaskTypeAnalyzeResume, &mockFactory{task: built})

	event := newFactoryEvent(t, domain.TaskTypeAnalyzeResume, map[string]string{})
	task, err := registry.Build(event)
	require.NoError(t, err)
	assert.Equal(t, built.ID(), task.ID())

	// Unregistered type
	other := newFactoryEvent(t, domain.TaskTypeCoverLetter, map[string]string{})
	_, err = registry.Build(other)
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestDispatchEventHandler_SubmitsBuiltTask(t *testing.T) {
	registry := NewFactoryRegistry()
	built := NewMockTask(domain.TaskTypeInterviewPrep)
	registry.Register(domain.TaskTypeInterviewPrep, &mockFactory{task: built})

	runner := &mockSubmitter{}
	handler := NewDispatchEventHandler(registry, runner, testLogger())

	event := newFactoryEvent(t, domain.TaskTypeInterviewPrep, map[string]string{})
	require.NoError(t, handler.HandleEvent(context.Background(), event))

	require.Len(t, runner.submitted, 1)
	assert.Equal(t, built.ID(), runner.submitted[0].ID())
}

func TestDispatchEventHandler_IgnoresUnknownType(t *testing.T) {
	handler := NewDispatchEventHandler(NewFactoryRegistry(), &mockSubmitter{}, testLogger())

	event := newFactoryEvent(t, domain.TaskTypeAddSkill, map[string]string{})
	assert.NoError(t, handler.HandleEvent(context.Background(), event))
}

func TestDispatchEventHandler_FactoryError(t *testing.T) {
	registry := NewFactoryRegistry()
	registry.Register(domain.TaskTypeAnalyzeResume, &mockFactory{err: errors.New("bad payload")})

	handler := NewDispatchEventHandler(registry, &mockSubmitter{}, testLogger())

	event := newFactoryEvent(t, domain.TaskTypeAnalyzeResume, map[string]string{})
	assert.Error(t, handler.HandleEvent(context.Background(), event))
}

func TestDispatchEventHandler_SubmitError(t *testing.T) {
	registry := NewFactoryRegistry()
	registry.Register(domain.TaskTypeAnalyzeResume, &mockFactory{task: NewMockTask(domain.TaskTypeAnalyzeResume)})

	runner := &mockSubmitter{err: ErrQueueFull}
	handler := NewDispatchEventHandler(registry, runner, testLogger())

	event := newFactoryEvent(t, domain.TaskTypeAnalyzeResume, map[string]string{})
	err := handler.HandleEvent(context.Background(), event)
	assert.ErrorIs(t, err, ErrQueueFull)
}
