package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/domain"
)

func receiveSnapshot(t *testing.T, ch <-chan domain.TrackedTask) domain.TrackedTask {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received")
		return domain.TrackedTask{}
	}
}

func TestNotifier_PublishReachesSubscribers(t *testing.T) {
	notifier := NewNotifier(testLogger())

	task := NewMockTask(domain.TaskTypeAnalyzeResume)
	row := task.TrackedRow()

	ch1, cancel1 := notifier.Subscribe(row.ID)
	defer cancel1()
	ch2, cancel2 := notifier.Subscribe(row.ID)
	defer cancel2()

	notifier.Publish(*row)

	snap1 := receiveSnapshot(t, ch1)
	snap2 := receiveSnapshot(t, ch2)
	assert.Equal(t, row.ID, snap1.ID)
	assert.Equal(t, row.ID, snap2.ID)
}

func TestNotifier_PublishScopedToTask(t *testing.T) {
	notifier := NewNotifier(testLogger())

	rowA := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	rowB := NewMockTask(domain.TaskTypeCoverLetter).TrackedRow()

	chA, cancelA := notifier.Subscribe(rowA.ID)
	defer cancelA()

	notifier.Publish(*rowB)
	notifier.Publish(*rowA)

	snap := receiveSnapshot(t, chA)
	assert.Equal(t, rowA.ID, snap.ID)
	assert.Empty(t, chA)
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	notifier := NewNotifier(testLogger())

	row := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	ch, cancel := notifier.Subscribe(row.ID)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	notifier.Publish(*row)

	// Cancelling twice is safe.
	cancel()
}

func TestNotifyingTaskStore_MutationsPublishSnapshots(t *testing.T) {
	notifier := NewNotifier(testLogger())
	inner := NewMockTaskStore()
	notifying := NewNotifyingTaskStore(inner, notifier)

	task := NewMockTask(domain.TaskTypeInterviewPrep)
	row := task.TrackedRow()

	ch, cancel := notifier.Subscribe(row.ID)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, notifying.Create(ctx, row))
	snap := receiveSnapshot(t, ch)
	assert.Equal(t, domain.TaskStatusQueued, snap.Status)

	require.NoError(t, notifying.Claim(ctx, row.ID))
	snap = receiveSnapshot(t, ch)
	assert.Equal(t, domain.TaskStatusProcessing, snap.Status)

	require.NoError(t, notifying.UpdateProgress(ctx, row.ID, 45, "technical_prep"))
	snap = receiveSnapshot(t, ch)
	assert.Equal(t, 45, snap.Progress)
	assert.Equal(t, "technical_prep", snap.Stage)

	resultID := uuid.New()
	require.NoError(t, notifying.Complete(ctx, row.ID, &resultID))
	snap = receiveSnapshot(t, ch)
	assert.Equal(t, domain.TaskStatusCompleted, snap.Status)
	require.NotNil(t, snap.ResultID)
	assert.Equal(t, resultID, *snap.ResultID)
}

func TestNotifyingTaskStore_FailedMutationPublishesNothing(t *testing.T) {
	notifier := NewNotifier(testLogger())
	inner := NewMockTaskStore()
	notifying := NewNotifyingTaskStore(inner, notifier)

	row := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	ch, cancel := notifier.Subscribe(row.ID)
	defer cancel()

	// Claim on a nonexistent row fails; no snapshot goes out.
	err := notifying.Claim(context.Background(), row.ID)
	require.Error(t, err)
	assert.Empty(t, ch)
}

func TestNotifyingTaskStore_DeletePublishesCancelled(t *testing.T) {
	notifier := NewNotifier(testLogger())
	inner := NewMockTaskStore()
	notifying := NewNotifyingTaskStore(inner, notifier)

	row := NewMockTask(domain.TaskTypeInterviewPrep).TrackedRow()
	ctx := context.Background()
	require.NoError(t, inner.Create(ctx, row))

	ch, cancel := notifier.Subscribe(row.ID)
	defer cancel()

	require.NoError(t, notifying.Delete(ctx, row.ID))

	snap := receiveSnapshot(t, ch)
	assert.Equal(t, domain.TaskStatusCancelled, snap.Status)

	_, err := inner.GetByID(ctx, row.ID)
	assert.Error(t, err)
}

func TestNotifier_SlowSubscriberStillSeesFinalSnapshot(t *testing.T) {
	notifier := NewNotifier(testLogger())

	row := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	ch, cancel := notifier.Subscribe(row.ID)
	defer cancel()

	// Flood well past the buffer without draining; older snapshots are
	// shed, never the newest.
	for i := 0; i <= subscriberBuffer*2; i++ {
		snap := *row
		snap.Status = domain.TaskStatusProcessing
		snap.Progress = i
		notifier.Publish(snap)
	}
	final := *row
	final.Status = domain.TaskStatusCompleted
	final.Progress = 100
	notifier.Publish(final)

	last := receiveSnapshot(t, ch)
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, domain.TaskStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestNotifier_FirehoseReceivesEveryTask(t *testing.T) {
	notifier := NewNotifier(testLogger())

	ch, cancel := notifier.SubscribeAll()
	defer cancel()

	rowA := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	rowB := NewMockTask(domain.TaskTypeCoverLetter).TrackedRow()

	notifier.Publish(*rowA)
	notifier.Publish(*rowB)

	first := receiveSnapshot(t, ch)
	second := receiveSnapshot(t, ch)
	assert.Equal(t, rowA.ID, first.ID)
	assert.Equal(t, rowB.ID, second.ID)
}

func TestNotifier_FirehoseCancelClosesChannel(t *testing.T) {
	notifier := NewNotifier(testLogger())

	ch, cancel := notifier.SubscribeAll()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	row := NewMockTask(domain.TaskTypeAnalyzeResume).TrackedRow()
	notifier.Publish(*row)
}
