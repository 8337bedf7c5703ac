package task

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// subscriberBuffer bounds each subscriber channel. When a slow consumer
// fills its buffer the oldest queued snapshot is evicted in favour of
// the newest; every snapshot is a full state, so a consumer that misses
// intermediate ones still converges on the latest.
const subscriberBuffer = 16

// Notifier is an in-process hub for tracked-task snapshots. Store
// mutations publish the task's current state; subscribers (the SSE
// endpoint, the queue picker) receive at-least-once snapshot streams.
type Notifier struct {
	mu       sync.RWMutex
	subs     map[uuid.UUID]map[int]chan domain.TrackedTask
	firehose map[int]chan domain.TrackedTask
	nextID   int
	logger   *slog.Logger
}

// NewNotifier creates an empty notifier hub.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		subs:     make(map[uuid.UUID]map[int]chan domain.TrackedTask),
		firehose: make(map[int]chan domain.TrackedTask),
		logger:   logger.With("component", "task_notifier"),
	}
}

// Subscribe registers interest in snapshots of the given task. The
// returned cancel func must be called when the subscriber is done; it
// closes the channel.
func (n *Notifier) Subscribe(taskID uuid.UUID) (<-chan domain.TrackedTask, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan domain.TrackedTask, subscriberBuffer)

	if n.subs[taskID] == nil {
		n.subs[taskID] = make(map[int]chan domain.TrackedTask)
	}
	n.subs[taskID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if chans, ok := n.subs[taskID]; ok {
			if c, ok := chans[id]; ok {
				delete(chans, id)
				close(c)
			}
			if len(chans) == 0 {
				delete(n.subs, taskID)
			}
		}
	}

	return ch, cancel
}

// SubscribeAll registers interest in snapshots of every task. The queue
// picker feeds on this stream. The returned cancel func closes the
// channel.
func (n *Notifier) SubscribeAll() (<-chan domain.TrackedTask, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan domain.TrackedTask, subscriberBuffer)
	n.firehose[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.firehose[id]; ok {
			delete(n.firehose, id)
			close(c)
		}
	}

	return ch, cancel
}

// Publish delivers a snapshot to all subscribers of the task. Sends
// never block: a full subscriber buffer sheds its oldest snapshot to
// make room, so the latest state, terminal states included, is always
// queued.
func (n *Notifier) Publish(task domain.TrackedTask) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs[task.ID] {
		n.send(ch, task)
	}
	for _, ch := range n.firehose {
		n.send(ch, task)
	}
}

// send enqueues task on ch, evicting queued snapshots as needed. The
// subscriber's cancel func takes the write lock before closing ch, so
// ch cannot be closed while Publish holds the read lock.
func (n *Notifier) send(ch chan domain.TrackedTask, task domain.TrackedTask) {
	for {
		select {
		case ch <- task:
			return
		default:
		}
		select {
		case stale := <-ch:
			n.logger.Debug("evicting snapshot for slow subscriber",
				"task_id", stale.ID)
		default:
		}
	}
}

// NotifyingTaskStore decorates a TaskStore so that every mutation
// publishes the task's post-mutation snapshot to the notifier. Reads
// pass through untouched.
type NotifyingTaskStore struct {
	store.TaskStore
	notifier *Notifier
}

// NewNotifyingTaskStore wraps inner so its mutations feed the notifier.
func NewNotifyingTaskStore(inner store.TaskStore, notifier *Notifier) *NotifyingTaskStore {
	return &NotifyingTaskStore{TaskStore: inner, notifier: notifier}
}

// Create implements store.TaskStore.
func (s *NotifyingTaskStore) Create(ctx context.Context, task *domain.TrackedTask) error {
	if err := s.TaskStore.Create(ctx, task); err != nil {
		return err
	}
	s.notifier.Publish(*task)
	return nil
}

// Claim implements store.TaskStore.
func (s *NotifyingTaskStore) Claim(ctx context.Context, id uuid.UUID) error {
	if err := s.TaskStore.Claim(ctx, id); err != nil {
		return err
	}
	s.publishCurrent(ctx, id)
	return nil
}

// UpdateProgress implements store.TaskStore.
func (s *NotifyingTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, stage string) error {
	if err := s.TaskStore.UpdateProgress(ctx, id, progress, stage); err != nil {
		return err
	}
	s.publishCurrent(ctx, id)
	return nil
}

// Complete implements store.TaskStore.
func (s *NotifyingTaskStore) Complete(ctx context.Context, id uuid.UUID, resultID *uuid.UUID) error {
	if err := s.TaskStore.Complete(ctx, id, resultID); err != nil {
		return err
	}
	s.publishCurrent(ctx, id)
	return nil
}

// Fail implements store.TaskStore.
func (s *NotifyingTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	if err := s.TaskStore.Fail(ctx, id, errMsg); err != nil {
		return err
	}
	s.publishCurrent(ctx, id)
	return nil
}

// Cancel implements store.TaskStore.
func (s *NotifyingTaskStore) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.TaskStore.Cancel(ctx, id); err != nil {
		return err
	}
	s.publishCurrent(ctx, id)
	return nil
}

// Delete implements store.TaskStore. Subscribers of a deleted task
// receive a final cancelled snapshot, since the row itself is gone.
func (s *NotifyingTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	prior, err := s.TaskStore.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.TaskStore.Delete(ctx, id); err != nil {
		return err
	}

	snapshot := *prior
	snapshot.Status = domain.TaskStatusCancelled
	snapshot.UpdatedAt = time.Now().UTC()
	s.notifier.Publish(snapshot)
	return nil
}

// WithTx implements store.TaskStore. The transactional store keeps
// publishing through the same notifier.
func (s *NotifyingTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &NotifyingTaskStore{
		TaskStore: s.TaskStore.WithTx(tx),
		notifier:  s.notifier,
	}
}

func (s *NotifyingTaskStore) publishCurrent(ctx context.Context, id uuid.UUID) {
	task, err := s.TaskStore.GetByID(ctx, id)
	if err != nil {
		// The mutation landed; a failed re-read only costs a snapshot.
		return
	}
	s.notifier.Publish(*task)
}

var _ store.TaskStore = (*NotifyingTaskStore)(nil)
