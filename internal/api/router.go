/**
 * @description
 * This file sets up the HTTP router for the loan workflow service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS, and session
 * authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WorkflowRoutes creates and returns the router for the workflow service.
func WorkflowRoutes(h *WorkflowHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and CORS.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public session endpoints.
	r.Post("/auth/register", h.RegisterHandler)
	r.Post("/auth/login", h.LoginHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(h.jwtSecret))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/transfers", h.SendMoneyHandler)
		r.Post("/requests", h.RequestMoneyHandler)

		r.Get("/notifications", h.UnreadNotificationsHandler)
		r.Post("/notifications/{id}/accept", h.AcceptRequestHandler)
		r.Post("/notifications/{id}/decline", h.DeclineRequestHandler)
		r.Post("/notifications/{id}/read", h.MarkNotificationReadHandler)

		r.Get("/transactions", h.TransactionsHandler)
		r.Delete("/transactions/{id}", h.DeleteTransactionHandler)
	})

	// The SSE stream holds its connection open for the life of the viewing
	// session, so it sits outside the timeout middleware.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(h.jwtSecret))
		r.Get("/transactions/stream", h.StreamLedgerHandler)
	})

	return r
}
