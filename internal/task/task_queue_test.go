package task

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTaskQueue_EnqueueAndConsume(t *testing.T) {
	queue := NewTaskQueue(2, testLogger())

	task1 := NewMockTask(domain.TaskTypeAnalyzeResume)
	task2 := NewMockTask(domain.TaskTypeInterviewPrep)

	require.NoError(t, queue.Enqueue(task1))
	require.NoError(t, queue.Enqueue(task2))

	got1 := <-queue.GetChannel()
	got2 := <-queue.GetChannel()
	assert.Equal(t, task1.ID(), got1.ID())
	assert.Equal(t, task2.ID(), got2.ID())
}

func TestTaskQueue_Full(t *testing.T) {
	queue := NewTaskQueue(1, testLogger())

	require.NoError(t, queue.Enqueue(NewMockTask(domain.TaskTypeAnalyzeResume)))

	err := queue.Enqueue(NewMockTask(domain.TaskTypeAnalyzeResume))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestTaskQueue_Closed(t *testing.T) {
	queue := NewTaskQueue(1, testLogger())
	queue.Close()

	err := queue.Enqueue(NewMockTask(domain.TaskTypeAnalyzeResume))
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Closing twice is a no-op
	queue.Close()
}
