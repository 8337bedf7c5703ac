package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/api/shared"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/ledger"
	"github.com/pathwise/pathwise-api/internal/store"
	"github.com/pathwise/pathwise-api/internal/task"
)

// stubLedger records debit calls and serves canned results.
type stubLedger struct {
	mu       sync.Mutex
	balance  int
	debitErr error
	calls    []string // call order shared with recordingTaskStore
	debits   int
}

func (s *stubLedger) Debit(ctx context.Context, userID uuid.UUID, cost int, activityType domain.ActivityType, description, resourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debits++
	s.calls = append(s.calls, "debit")
	if s.debitErr != nil {
		return 0, s.debitErr
	}
	s.balance -= cost
	return s.balance, nil
}

// recordingTaskStore counts Create calls and appends to the shared order log.
type recordingTaskStore struct {
	*task.MockTaskStore
	ledger  *stubLedger
	creates int
}

func (s *recordingTaskStore) Create(ctx context.Context, t *domain.TrackedTask) error {
	s.ledger.mu.Lock()
	s.creates++
	s.ledger.calls = append(s.ledger.calls, "create")
	s.ledger.mu.Unlock()
	return s.MockTaskStore.Create(ctx, t)
}

type stubEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (s *stubEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

type stubCanceller struct {
	mu        sync.Mutex
	cancelled []uuid.UUID
}

func (s *stubCanceller) Cancel(taskID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, taskID)
}

type taskHandlerFixture struct {
	handler   *TaskHandler
	store     *recordingTaskStore
	guides    *task.MockGuideStore
	ledger    *stubLedger
	emitter   *stubEmitter
	canceller *stubCanceller
	notifier  *task.Notifier
	router    *chi.Mux
	userID    uuid.UUID
}

func newTaskHandlerFixture(t *testing.T) *taskHandlerFixture {
	t.Helper()

	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := &stubLedger{balance: 100}
	st := &recordingTaskStore{MockTaskStore: task.NewMockTaskStore(), ledger: led}
	guides := task.NewMockGuideStore()
	emitter := &stubEmitter{}
	canceller := &stubCanceller{}
	notifier := task.NewNotifier(lgr)
	reaper := task.NewReaper(st, time.Hour, lgr)

	handler := NewTaskHandler(st, guides, led, emitter, canceller, notifier, reaper)

	router := chi.NewRouter()
	router.Post("/tasks", handler.CreateTask)
	router.Get("/tasks/{id}", handler.GetTask)
	router.Delete("/tasks/{id}", handler.CancelTask)
	router.Get("/tasks/{id}/events", handler.StreamTaskEvents)

	return &taskHandlerFixture{
		handler:   handler,
		store:     st,
		guides:    guides,
		ledger:    led,
		emitter:   emitter,
		canceller: canceller,
		notifier:  notifier,
		router:    router,
		userID:    uuid.New(),
	}
}

// asUser stamps the authenticated user into the request context the way
// the auth middleware does.
func asUser(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

func (f *taskHandlerFixture) createTask(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))
	return rec
}

func (f *taskHandlerFixture) seedTask(t *testing.T, status domain.TaskStatus) *domain.TrackedTask {
	t.Helper()
	row, err := domain.NewTrackedTask(f.userID, domain.TaskTypeAnalyzeResume, map[string]any{
		"company_name": "Acme Corp",
	})
	require.NoError(t, err)
	require.NoError(t, f.store.MockTaskStore.Create(context.Background(), row))
	if status == domain.TaskStatusProcessing {
		require.NoError(t, f.store.Claim(context.Background(), row.ID))
	}
	row.Status = status
	return row
}

func TestCreateTask_DebitsThenPersists(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	rec := f.createTask(t, `{"type":"analyze_resume","payload":{"resume_text":"..."}}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "analyze_resume", resp.Task.Type)
	assert.Equal(t, "queued", resp.Task.Status)
	assert.Equal(t, 100-ledger.CostFor(domain.TaskTypeAnalyzeResume), resp.TokenBalance)

	// Debit strictly precedes row creation.
	require.Equal(t, []string{"debit", "create"}, f.ledger.calls)

	// The persisted row matches the response and the dispatch event.
	row, err := f.store.GetByID(context.Background(), resp.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, row.Status)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, resp.Task.ID, f.emitter.events[0].TaskID)
	assert.Equal(t, domain.TaskTypeAnalyzeResume, f.emitter.events[0].Type)
}

func TestCreateTask_InsufficientBalanceLeavesNoRow(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	f.ledger.debitErr = fmt.Errorf("%w: have 1, need 5", ledger.ErrInsufficientBalance)

	rec := f.createTask(t, `{"type":"analyze_resume","payload":{}}`)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeInsufficientBalance)

	// Rejected admission must not leave a task row or emit an event.
	assert.Equal(t, 1, f.ledger.debits)
	assert.Zero(t, f.store.creates)
	assert.Empty(t, f.emitter.events)
}

func TestCreateTask_InvalidTypeRejectedBeforeDebit(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	rec := f.createTask(t, `{"type":"mine_bitcoin","payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ledger.debits)
	assert.Zero(t, f.store.creates)
}

func TestCreateTask_MalformedBody(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	rec := f.createTask(t, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ledger.debits)
}

func TestCreateTask_EmitFailureStillAccepted(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	f.emitter.err = fmt.Errorf("handler unavailable")

	rec := f.createTask(t, `{"type":"analyze_resume","payload":{}}`)

	// The queued row survives; sweep or a competing executor picks it up.
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, f.store.creates)
}

func TestGetTask_ReturnsOwnTask(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusQueued)

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, row.ID, resp.ID)
	assert.Equal(t, "queued", resp.Status)
}

func TestGetTask_ForeignTaskReadsAsNotFound(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusQueued)

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, uuid.New()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTask_ReadFailsCallersStaleTask(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row, err := domain.NewTrackedTask(f.userID, domain.TaskTypeAnalyzeResume, map[string]any{
		"company_name": "Acme Corp",
	})
	require.NoError(t, err)
	// Old enough that the abandoned processing row trips the sweep.
	row.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.store.MockTaskStore.Create(context.Background(), row))
	require.NoError(t, f.store.Claim(context.Background(), row.ID))

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, task.StaleTaskError, resp.Error)
}

func TestGetTask_InvalidID(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/tasks/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTask_QueuedTaskIsDeleted(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusQueued)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.store.GetByID(context.Background(), row.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.Empty(t, f.canceller.cancelled)
}

func TestCancelTask_ProcessingTaskIsCancelled(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusProcessing)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := f.store.GetByID(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
	assert.Equal(t, []uuid.UUID{row.ID}, f.canceller.cancelled)
}

func TestCancelTask_FinishedTaskConflicts(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusProcessing)
	require.NoError(t, f.store.Complete(context.Background(), row.ID, nil))

	req := httptest.NewRequest(http.MethodDelete, "/tasks/"+row.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStreamTaskEvents_SendsSnapshotsUntilTerminal(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusProcessing)

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, asUser(req, f.userID))
	}()

	// Give the handler time to subscribe, then publish progress and a
	// terminal snapshot. The terminal snapshot ends the stream.
	time.Sleep(50 * time.Millisecond)
	progress := *row
	progress.Status = domain.TaskStatusProcessing
	progress.Progress = 40
	f.notifier.Publish(progress)

	final := *row
	final.Status = domain.TaskStatusCompleted
	final.Progress = 100
	f.notifier.Publish(final)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after terminal snapshot")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.GreaterOrEqual(t, len(frames), 2)
	assert.Contains(t, frames[0], `"status":"processing"`)
	assert.Contains(t, frames[len(frames)-1], `"completed"`)
}

func TestStreamTaskEvents_TerminalTaskClosesImmediately(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusProcessing)
	require.NoError(t, f.store.Complete(context.Background(), row.ID, nil))

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, asUser(req, f.userID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed"`)
}

// finalizingReadStore completes the row right after its first read. The
// stream handler reads once for the ownership check and once after
// subscribing, so this lands a terminal write in between with nothing
// published on the notifier.
type finalizingReadStore struct {
	store.TaskStore
	mu    sync.Mutex
	reads int
}

func (s *finalizingReadStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrackedTask, error) {
	s.mu.Lock()
	s.reads++
	first := s.reads == 1
	s.mu.Unlock()

	row, err := s.TaskStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if first {
		if err := s.TaskStore.Complete(ctx, id, nil); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func TestStreamTaskEvents_TerminalWriteBeforeSubscribeEndsStream(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	row := f.seedTask(t, domain.TaskStatusProcessing)

	st := &finalizingReadStore{TaskStore: f.store}
	handler := NewTaskHandler(st, f.guides, f.ledger, f.emitter, f.canceller, f.notifier,
		task.NewReaper(f.store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil))))
	router := chi.NewRouter()
	router.Get("/tasks/{id}/events", handler.StreamTaskEvents)

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+row.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(rec, asUser(req, f.userID))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open past a terminal write that predates the subscription")
	}

	assert.Equal(t, http.StatusOK, rec.Code)
	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	assert.Contains(t, frames[len(frames)-1], `"completed"`)
}

func TestTaskEndpoints_RequireAuthenticatedUser(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"type":"analyze_resume"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.ledger.debits)
}

func TestCreateTask_InterviewPrepCreatesPendingGuide(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	body := fmt.Sprintf(
		`{"type":"interview_prep","payload":{"application_id":"%s","company_name":"Acme Corp","role_title":"Platform Engineer","job_description":"Go services at scale"}}`,
		uuid.New())

	rec := f.createTask(t, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// The queued row carries the created guide's ID for the pipeline.
	row, err := f.store.GetByID(context.Background(), resp.Task.ID)
	require.NoError(t, err)
	guideID, err := uuid.Parse(row.PayloadString("guide_id"))
	require.NoError(t, err)

	guide, err := f.guides.GetByID(context.Background(), guideID)
	require.NoError(t, err)
	assert.Equal(t, domain.GuideStatusPending, guide.Status)
	assert.Equal(t, "Acme Corp", guide.CompanyName)
}

func TestCreateTask_InterviewPrepWithoutApplicationRejectedBeforeDebit(t *testing.T) {
	t.Parallel()

	f := newTaskHandlerFixture(t)
	rec := f.createTask(t, `{"type":"interview_prep","payload":{"company_name":"Acme Corp"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ledger.debits)
	assert.Zero(t, f.store.creates)
}
