package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pathwise/pathwise-api/internal/api"
	apiMiddleware "github.com/pathwise/pathwise-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(
		app.userStore,
		app.jwtService,
		app.passwordVerifier,
		app.passwordHasher,
		app.config.Auth.SignupBalance,
	)
	taskHandler := api.NewTaskHandler(
		app.taskStore,
		app.guideStore,
		app.ledgerService,
		app.eventEmitter,
		&executionCanceller{runner: app.taskRunner, picker: app.picker},
		app.notifier,
		app.reaper,
	)
	ledgerHandler := api.NewLedgerHandler(
		app.userStore,
		app.ledgerService,
		app.config.Auth.PaymentWebhookID,
	)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints. The credit webhook authenticates with a
		// shared secret header instead of a user token.
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/ledger/credits", ledgerHandler.ApplyCredit)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/tasks", taskHandler.CreateTask)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Delete("/tasks/{id}", taskHandler.CancelTask)
			r.Get("/tasks/{id}/events", taskHandler.StreamTaskEvents)

			r.Get("/ledger/balance", ledgerHandler.GetBalance)
			r.Get("/ledger/activities", ledgerHandler.ListActivities)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
