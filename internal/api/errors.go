package api

import (
	"errors"
	"net/http"

	"github.com/pathwise/pathwise-api/internal/api/shared"
	"github.com/pathwise/pathwise-api/internal/ledger"
	"github.com/pathwise/pathwise-api/internal/service/auth"
	"github.com/pathwise/pathwise-api/internal/store"
)

// CodeInsufficientBalance is the machine-readable code returned when task
// admission is rejected for lack of tokens.
const CodeInsufficientBalance = "INSUFFICIENT_BALANCE"

// codedErrorResponse is an error body carrying a machine-readable code in
// addition to the human-readable message.
type codedErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondWithCodedError writes a JSON error response with a machine-readable code.
func respondWithCodedError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	shared.RespondWithJSON(w, r, status, codedErrorResponse{
		Error: message,
		Code:  code,
	})
}

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Admission errors
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrTaskFinalized):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "Insufficient token balance"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrGuideNotFound):
		return "Prep guide not found"

	case errors.Is(err, store.ErrAnalysisNotFound):
		return "Analysis not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, store.ErrTaskFinalized):
		return "Task already finished"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Invalid amount"

	default:
		return "An unexpected error occurred"
	}
}
