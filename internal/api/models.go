package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID uuid.UUID `json:"user_id"`

	// Token is the JWT token used for API authorization
	Token string `json:"token"`

	// TokenBalance is the user's current token balance
	TokenBalance int `json:"token_balance"`
}

// CreateTaskRequest defines the payload for creating a tracked task.
type CreateTaskRequest struct {
	Type    string         `json:"type"    validate:"required"`
	Payload map[string]any `json:"payload"`
}

// TaskResponse represents the client-visible state of a tracked task.
type TaskResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	Stage     string     `json:"stage,omitempty"`
	ResultID  *uuid.UUID `json:"result_id,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateTaskResponse is returned after successful task admission. It
// carries the balance remaining after the admission debit.
type CreateTaskResponse struct {
	Task         TaskResponse `json:"task"`
	TokenBalance int          `json:"token_balance"`
}

// BalanceResponse reports the user's current token balance.
type BalanceResponse struct {
	TokenBalance int `json:"token_balance"`
}

// CreditRequest defines the payload of a payment-confirmation webhook.
// PaymentRef is the external payment reference and doubles as the
// idempotency key: redelivery of the same confirmation credits once.
type CreditRequest struct {
	UserID     uuid.UUID `json:"user_id"     validate:"required"`
	Amount     int       `json:"amount"      validate:"required,gt=0"`
	PaymentRef string    `json:"payment_ref" validate:"required"`
}

// CreditResponse reports the balance after a credit was applied.
type CreditResponse struct {
	TokenBalance int `json:"token_balance"`
}

// taskToResponse converts a domain.TrackedTask to its API representation.
func taskToResponse(t domain.TrackedTask) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Type:      string(t.Type),
		Status:    string(t.Status),
		Progress:  t.Progress,
		Stage:     t.Stage,
		ResultID:  t.ResultID,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
