/**
 * @description
 * This file contains the HTTP handlers for the loan workflow API. Handlers
 * parse incoming requests, call the workflow service with the acting identity
 * from the session, and map workflow errors onto HTTP status codes. They are
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/identity, internal/store.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/app"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/domain"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// WorkflowHandlers holds the workflow service and its collaborators.
type WorkflowHandlers struct {
	service  *app.Service
	provider identity.Provider
	limiter  *app.AcceptRateLimiter

	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewWorkflowHandlers creates a new instance of WorkflowHandlers. The limiter
// may be nil, which disables accept throttling.
func NewWorkflowHandlers(service *app.Service, provider identity.Provider, limiter *app.AcceptRateLimiter, jwtSecret []byte, tokenTTL time.Duration) *WorkflowHandlers {
	return &WorkflowHandlers{
		service:   service,
		provider:  provider,
		limiter:   limiter,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type credentialsPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type sessionResponse struct {
	Token string            `json:"token"`
	User  identity.Identity `json:"user"`
}

// transferPayload is the wire form of a send or request body. The return date
// is a calendar date, not an instant.
type transferPayload struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	AccountType string          `json:"accountType"`
	ReturnDate  string          `json:"returnDate"`
	Amount      decimal.Decimal `json:"amount"`
}

func (p transferPayload) toInput() (domain.TransferInput, error) {
	in := domain.TransferInput{
		Name:        p.Name,
		Email:       p.Email,
		AccountType: domain.AccountType(p.AccountType),
		Amount:      p.Amount,
	}
	if p.ReturnDate != "" {
		date, err := time.Parse("2006-01-02", p.ReturnDate)
		if err != nil {
			return domain.TransferInput{}, domain.ErrMissingReturnDate
		}
		in.ReturnDate = date
	}
	return in, nil
}

// RegisterHandler creates a new identity and issues a session token.
func (h *WorkflowHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.provider.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, "Email is already registered")
		case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidCredentials):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=register err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Registration failed")
		}
		return
	}

	h.issueSession(w, http.StatusCreated, id)
}

// LoginHandler authenticates credentials and issues a session token.
func (h *WorkflowHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.provider.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	h.issueSession(w, http.StatusOK, id)
}

func (h *WorkflowHandlers) issueSession(w http.ResponseWriter, status int, id identity.Identity) {
	token, err := NewSessionToken(h.jwtSecret, id, h.tokenTTL)
	if err != nil {
		log.Printf("level=error component=api msg=\"session token signing failed\" user_id=%s err=%v", id.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not issue session")
		return
	}
	h.writeJSON(w, status, sessionResponse{Token: token, User: id})
}

// SendMoneyHandler handles requests to send money to another user.
func (h *WorkflowHandlers) SendMoneyHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	var payload transferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := payload.toInput()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, notif, err := h.service.SendMoney(r.Context(), actor, in)
	if err != nil {
		h.mapWorkflowError(w, "send_money", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"transaction":  tx,
		"notification": notif,
	})
}

// RequestMoneyHandler handles requests to ask another user for money.
func (h *WorkflowHandlers) RequestMoneyHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	var payload transferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := payload.toInput()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notif, err := h.service.RequestMoney(r.Context(), actor, in)
	if err != nil {
		h.mapWorkflowError(w, "request_money", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"notification": notif})
}

// UnreadNotificationsHandler returns the actor's unread feed.
func (h *WorkflowHandlers) UnreadNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	notifs, err := h.service.UnreadNotifications(r.Context(), actor)
	if err != nil {
		h.mapWorkflowError(w, "unread_notifications", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

// AcceptRequestHandler resolves a money request in the actor's favor of the
// requester. Accept attempts are rate limited per user to blunt double-click
// storms.
func (h *WorkflowHandlers) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), actor.ID.String())
		if err != nil {
			log.Printf("level=warn component=api endpoint=accept_request msg=\"rate limiter unavailable; allowing\" err=%v", err)
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many accept attempts. Please wait and try again.")
			return
		}
	}

	notificationID := chi.URLParam(r, "id")
	if err := h.service.AcceptRequest(r.Context(), actor, notificationID); err != nil {
		h.mapWorkflowError(w, "accept_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// DeclineRequestHandler marks a money request read without any ledger write.
func (h *WorkflowHandlers) DeclineRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	notificationID := chi.URLParam(r, "id")
	if err := h.service.DeclineRequest(r.Context(), actor, notificationID); err != nil {
		h.mapWorkflowError(w, "decline_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

// MarkNotificationReadHandler dismisses a notification.
func (h *WorkflowHandlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	notificationID := chi.URLParam(r, "id")
	if err := h.service.MarkNotificationRead(r.Context(), actor, notificationID); err != nil {
		h.mapWorkflowError(w, "mark_read", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// TransactionsHandler returns the current snapshot of the actor's ledger.
func (h *WorkflowHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	txs, err := h.service.Transactions(r.Context(), actor)
	if err != nil {
		h.mapWorkflowError(w, "transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// DeleteTransactionHandler removes one entry from the actor's ledger.
func (h *WorkflowHandlers) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	transactionID := chi.URLParam(r, "id")
	if err := h.service.DeleteTransaction(r.Context(), actor, transactionID); err != nil {
		h.mapWorkflowError(w, "delete_transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mapWorkflowError translates workflow errors into HTTP responses.
func (h *WorkflowHandlers) mapWorkflowError(w http.ResponseWriter, endpoint string, err error) {
	var partial *app.PartialWorkflowError
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
	case errors.Is(err, app.ErrNotificationNotFound), errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, app.ErrNotAddressedToUser):
		h.writeError(w, http.StatusForbidden, "Notification is addressed to another user")
	case errors.Is(err, app.ErrRequestAlreadyResolved):
		h.writeError(w, http.StatusConflict, "Request has already been resolved")
	case errors.Is(err, app.ErrNotARequest),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountType),
		errors.Is(err, domain.ErrMissingName),
		errors.Is(err, domain.ErrMissingEmail),
		errors.Is(err, domain.ErrMissingReturnDate):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &partial):
		// An earlier write is durable; the caller needs to know this is not
		// a clean failure they can blindly retry.
		log.Printf("level=error component=api endpoint=%s msg=\"partial workflow failure\" stage=%s err=%v", endpoint, partial.Stage, partial.Err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "The operation partially completed and needs attention",
			"stage": partial.Stage,
		})
	default:
		log.Printf("level=error component=api endpoint=%s err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *WorkflowHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=warn component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *WorkflowHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

