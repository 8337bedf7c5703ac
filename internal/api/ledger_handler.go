package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pathwise/pathwise-api/internal/api/shared"
	"github.com/pathwise/pathwise-api/internal/domain"
	"github.com/pathwise/pathwise-api/internal/store"
)

// defaultActivityLimit bounds GET /ledger/activities when no limit is given.
const defaultActivityLimit = 50

// CreditLedger applies idempotent balance credits and lists activity rows.
type CreditLedger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int, paymentRef string) (int, error)
	Activities(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.LedgerActivity, error)
}

// LedgerHandler handles token-ledger API requests.
type LedgerHandler struct {
	userStore store.UserStore
	ledger    CreditLedger
	webhookID string
	validator *validator.Validate
}

// NewLedgerHandler creates a new LedgerHandler. webhookID is the shared
// secret the payment provider sends with credit confirmations.
func NewLedgerHandler(userStore store.UserStore, creditLedger CreditLedger, webhookID string) *LedgerHandler {
	return &LedgerHandler{
		userStore: userStore,
		ledger:    creditLedger,
		webhookID: webhookID,
		validator: validator.New(),
	}
}

// GetBalance handles GET /ledger/balance.
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	user, err := h.userStore.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "User not found")
			return
		}
		slog.Error("failed to get user", "error", err, "user_id", userID)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{
		TokenBalance: user.TokenBalance,
	})
}

// ListActivities handles GET /ledger/activities. An optional "limit" query
// parameter bounds the number of rows, newest first.
func (h *LedgerHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	activities, err := h.ledger.Activities(r.Context(), userID, limit)
	if err != nil {
		slog.Error("failed to list ledger activities", "error", err, "user_id", userID)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, activities)
}

// ApplyCredit handles POST /ledger/credits, the payment-confirmation
// webhook. The payment reference keys idempotency: a redelivered
// confirmation reports the balance from its first application.
func (h *LedgerHandler) ApplyCredit(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedWebhook(r) {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid webhook credentials")
		return
	}

	var req CreditRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	newBalance, err := h.ledger.Credit(r.Context(), req.UserID, req.Amount, req.PaymentRef)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "User not found")
			return
		}
		slog.Error("failed to apply credit",
			"error", err, "user_id", req.UserID, "payment_ref", req.PaymentRef)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CreditResponse{
		TokenBalance: newBalance,
	})
}

// authorizedWebhook verifies the shared webhook secret in constant time.
// An empty configured secret disables the webhook entirely.
func (h *LedgerHandler) authorizedWebhook(r *http.Request) bool {
	if h.webhookID == "" {
		return false
	}
	sent := r.Header.Get("X-Webhook-ID")
	return subtle.ConstantTimeCompare([]byte(sent), []byte(h.webhookID)) == 1
}
