package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/api/shared"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/events"
	"github.com/pathwise/pathwise-api/internal/ledger"
	"github.com/pathwise/pathwise-api/internal/store"
)

// AdmissionLedger debits the fixed task cost before a task row may exist.
type AdmissionLedger interface {
	Debit(ctx context.Context, userID uuid.UUID, cost int, activityType domain.ActivityType, description, resourceID string) (int, error)
}

// TaskCanceller aborts in-flight local execution of a task.
type TaskCanceller interface {
	Cancel(taskID uuid.UUID)
}

// TaskSubscriber delivers task snapshots for streaming endpoints.
type TaskSubscriber interface {
	Subscribe(taskID uuid.UUID) (<-chan domain.TrackedTask, func())
}

// TaskSweeper fails a user's stale tasks. Read endpoints sweep before
// serving so a task abandoned by a crashed worker reads as failed
// instead of processing forever.
type TaskSweeper interface {
	Sweep(ctx context.Context, userID uuid.UUID) (int, error)
}

// TaskHandler handles tracked-task API requests.
type TaskHandler struct {
	taskStore  store.TaskStore
	guideStore store.GuideStore
	ledger     AdmissionLedger
	emitter    events.EventEmitter
	canceller  TaskCanceller
	subscriber TaskSubscriber
	sweeper    TaskSweeper
	validator  *validator.Validate
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(
	taskStore store.TaskStore,
	guideStore store.GuideStore,
	admissionLedger AdmissionLedger,
	emitter events.EventEmitter,
	canceller TaskCanceller,
	subscriber TaskSubscriber,
	sweeper TaskSweeper,
) *TaskHandler {
	return &TaskHandler{
		taskStore:  taskStore,
		guideStore: guideStore,
		ledger:     admissionLedger,
		emitter:    emitter,
		canceller:  canceller,
		subscriber: subscriber,
		sweeper:    sweeper,
		validator:  validator.New(),
	}
}

// CreateTask handles POST /tasks. Admission debits the task cost before
// the task row is created: a rejected debit leaves no task row behind.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := domain.NewTrackedTask(userID, domain.TaskType(req.Type), req.Payload)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task data: "+err.Error())
		return
	}

	// The prep-guide pipeline checkpoints against a guide row, so it must
	// exist before the task is dispatched. Validate its inputs before the
	// debit so a rejected request costs nothing.
	var guide *domain.PrepGuide
	if task.Type == domain.TaskTypeInterviewPrep {
		guide, err = guideFromPayload(userID, task.Payload)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task data: "+err.Error())
			return
		}
	}

	cost := ledger.CostFor(task.Type)
	newBalance, err := h.ledger.Debit(
		r.Context(),
		userID,
		cost,
		domain.ActivityType(task.Type),
		fmt.Sprintf("task admission: %s", task.Type),
		task.ID.String(),
	)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			respondWithCodedError(w, r, http.StatusPaymentRequired,
				GetSafeErrorMessage(err), CodeInsufficientBalance)
			return
		}
		slog.Error("task admission debit failed", "error", err, "user_id", userID, "task_type", task.Type)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	if guide != nil {
		if err := h.guideStore.Create(r.Context(), guide); err != nil {
			slog.Error("failed to create prep guide after debit",
				"error", err, "user_id", userID, "task_id", task.ID)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to create task")
			return
		}
		task.Payload["guide_id"] = guide.ID.String()
	}

	if err := h.taskStore.Create(r.Context(), task); err != nil {
		slog.Error("failed to persist task after debit",
			"error", err, "user_id", userID, "task_id", task.ID)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to create task")
		return
	}

	event, err := events.NewTaskRequestEvent(task.ID, userID, task.Type, task.Payload)
	if err != nil {
		slog.Error("failed to build task request event", "error", err, "task_id", task.ID)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to create task")
		return
	}

	// Dispatch failures are not fatal to admission: the row is already
	// queued and the startup sweep or a competing executor picks it up.
	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		slog.Warn("failed to dispatch task request event", "error", err, "task_id", task.ID)
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateTaskResponse{
		Task:         taskToResponse(*task),
		TokenBalance: newBalance,
	})
}

// GetTask handles GET /tasks/{id}. The caller's stale tasks are swept
// first, so a poll against a task whose worker died reports the failure
// rather than a stuck processing state.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	if _, err := h.sweeper.Sweep(r.Context(), userID); err != nil {
		// The read is still serviceable from whatever state the row is in.
		slog.Warn("stale task sweep failed", "error", err, "user_id", userID)
	}

	task, ok := h.fetchOwnedTask(w, r, userID)
	if !ok {
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(*task))
}

// CancelTask handles DELETE /tasks/{id}. A still-queued task is removed
// outright; a processing task is conditionally cancelled and any local
// execution aborted. Finished tasks cannot be cancelled.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	task, ok := h.fetchOwnedTask(w, r, userID)
	if !ok {
		return
	}

	if task.Status.IsTerminal() {
		shared.RespondWithError(w, r, http.StatusConflict, "Task already finished")
		return
	}

	if task.Status == domain.TaskStatusQueued {
		if err := h.taskStore.Delete(r.Context(), task.ID); err != nil && !errors.Is(err, store.ErrTaskNotFound) {
			slog.Error("failed to delete queued task", "error", err, "task_id", task.ID)
			shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.taskStore.Cancel(r.Context(), task.ID); err != nil {
		if errors.Is(err, store.ErrTaskFinalized) {
			shared.RespondWithError(w, r, http.StatusConflict, "Task already finished")
			return
		}
		slog.Error("failed to cancel task", "error", err, "task_id", task.ID)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	h.canceller.Cancel(task.ID)

	w.WriteHeader(http.StatusNoContent)
}

// StreamTaskEvents handles GET /tasks/{id}/events. It streams task state
// snapshots as server-sent events until the task reaches a terminal state
// or the client disconnects. The current state is sent immediately so a
// late subscriber never waits for the next mutation.
func (h *TaskHandler) StreamTaskEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	task, ok := h.fetchOwnedTask(w, r, userID)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	updates, cancel := h.subscriber.Subscribe(task.ID)
	defer cancel()

	// Re-read after subscribing so the initial frame reflects any write
	// that landed between the ownership check and the subscription; later
	// writes arrive on the channel. A row deleted in that window means the
	// user cancelled, so the stream ends with a cancelled snapshot.
	if current, err := h.taskStore.GetByID(r.Context(), task.ID); err == nil {
		task = current
	} else if errors.Is(err, store.ErrTaskNotFound) {
		task.Status = domain.TaskStatusCancelled
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !writeSSE(w, flusher, taskToResponse(*task)) {
		return
	}
	if task.Status.IsTerminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-updates:
			if !open {
				return
			}
			if !writeSSE(w, flusher, taskToResponse(snapshot)) {
				return
			}
			if snapshot.Status.IsTerminal() {
				return
			}
		}
	}
}

// writeSSE writes one server-sent event frame. Returns false when the
// connection is no longer writable.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload TaskResponse) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal task snapshot", "error", err, "task_id", payload.ID)
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// guideFromPayload builds the pending prep-guide row from the task
// payload of an interview-prep request.
func guideFromPayload(userID uuid.UUID, payload map[string]any) (*domain.PrepGuide, error) {
	str := func(key string) string {
		if s, ok := payload[key].(string); ok {
			return s
		}
		return ""
	}

	applicationID, err := uuid.Parse(str("application_id"))
	if err != nil {
		return nil, fmt.Errorf("application_id has invalid format")
	}

	return domain.NewPrepGuide(
		userID,
		applicationID,
		str("company_name"),
		str("role_title"),
		str("job_description"),
	)
}

// fetchOwnedTask loads the task from the path parameter and verifies the
// caller owns it. Foreign tasks read as not found so task IDs leak no
// information across users. Writes the error response itself on failure.
func (h *TaskHandler) fetchOwnedTask(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*domain.TrackedTask, bool) {
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}

	task, err := h.taskStore.GetByID(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return nil, false
		}
		slog.Error("failed to get task", "error", err, "task_id", taskID)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return nil, false
	}

	if task.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return nil, false
	}

	return task, true
}
