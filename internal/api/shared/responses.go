package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the error body every endpoint returns. TraceID lets
// a user report an error the operator can find in the logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes data as a JSON response with the given status.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response",
			"error", err, "path", r.URL.Path)
	}
}

// RespondWithError writes a JSON error body with the request's trace
// ID attached. The message must already be safe for clients; callers
// log the underlying error themselves.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	traceID := GetTraceID(r.Context())

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "error response",
		"status", status,
		"message", message,
		"trace_id", traceID,
		"method", r.Method,
		"path", r.URL.Path)

	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}
