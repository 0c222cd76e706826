/**
 * @description
 * This file contains the core business logic of the loan workflow. The
 * `Service` struct orchestrates the send, request, accept, and decline paths,
 * coordinating between the document store, the identity provider, and the
 * event producer.
 *
 * Key features:
 * - Every operation takes the acting identity as an explicit parameter; there
 *   is no ambient session state.
 * - The send path writes the sender's ledger entry before the notification,
 *   in that order. There is no rollback across the two writes: a notification
 *   failure after a successful ledger write surfaces as a partial workflow
 *   failure instead of being silently absorbed.
 * - The accept path journals its intent before touching either ledger so that
 *   a partial failure is retryable (see journal.go).
 *
 * @dependencies
 * - github.com/google/uuid: document and user identifiers.
 * - internal/domain, internal/store, internal/identity: models and boundaries.
 * - pkg/rabbitmq: workflow event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/domain"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
	"github.com/Panic-Devs/P2P-Loan-Framework/pkg/rabbitmq"
)

var (
	ErrUnauthenticated        = errors.New("no authenticated user")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrNotARequest            = errors.New("notification is not a money request")
	ErrNotAddressedToUser     = errors.New("notification is not addressed to the acting user")
	ErrRequestAlreadyResolved = errors.New("request has already been resolved")
)

// PartialWorkflowError reports that a multi-write sequence succeeded partway:
// an earlier write is durable while a later one failed, leaving the data model
// inconsistent. Stage names the write that failed.
type PartialWorkflowError struct {
	Stage string
	Err   error
}

func (e *PartialWorkflowError) Error() string {
	return fmt.Sprintf("partial workflow failure at %s: %v", e.Stage, e.Err)
}

func (e *PartialWorkflowError) Unwrap() error { return e.Err }

// Service provides the core business logic of the loan workflow.
type Service struct {
	store    store.DocumentStore
	identity identity.Provider
	events   rabbitmq.Publisher
	now      func() time.Time
}

// NewService creates a new workflow service instance. The events publisher may
// be nil; workflow writes never depend on the broker.
func NewService(docs store.DocumentStore, provider identity.Provider, events rabbitmq.Publisher) *Service {
	return &Service{
		store:    docs,
		identity: provider,
		events:   events,
		now:      time.Now,
	}
}

// SendMoney appends a Send transaction to the actor's ledger, then a Send
// notification addressed to the recipient's email. The ledger write is
// attempted first; if the notification write fails afterwards the ledger entry
// stays and the caller gets a PartialWorkflowError.
func (s *Service) SendMoney(ctx context.Context, actor identity.Identity, in domain.TransferInput) (*domain.Transaction, *domain.Notification, error) {
	if actor.IsZero() {
		return nil, nil, ErrUnauthenticated
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	recipient := normalizeAddress(in.Email)
	tx := &domain.Transaction{
		Name:        in.Name,
		Email:       recipient,
		AccountType: in.AccountType,
		ReturnDate:  in.ReturnDate,
		Amount:      in.Amount,
		Direction:   domain.DirectionSend,
		Timestamp:   now,
	}
	txID, err := s.store.Insert(ctx, store.UserTransactionsPath(actor.ID), tx)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger write failed: %w", err)
	}
	tx.ID = txID

	notif := &domain.Notification{
		Type:          domain.NotificationSend,
		SenderID:      actor.ID,
		SenderEmail:   actor.Email,
		ReceiverID:    s.resolveReceiver(ctx, recipient),
		ReceiverEmail: recipient,
		TransactionInfo: &domain.TransferDetails{
			Name:   in.Name,
			Amount: in.Amount,
			Date:   now,
		},
		Read:      false,
		Timestamp: now,
	}
	notifID, err := s.store.Insert(ctx, store.NotificationsPath, notif)
	if err != nil {
		// The ledger entry is already durable; there is no rollback.
		log.Printf("level=error component=workflow op=send_money msg=\"notification write failed after ledger write\" sender_id=%s transaction_id=%s err=%v", actor.ID, txID, err)
		return tx, nil, &PartialWorkflowError{Stage: "notification", Err: err}
	}
	notif.ID = notifID

	s.publish(ctx, domain.EventTransferSent, domain.WorkflowEvent{
		EventID:           uuid.NewString(),
		NotificationID:    notifID,
		ActorID:           actor.ID,
		ActorEmail:        actor.Email,
		CounterpartyEmail: recipient,
		Amount:            in.Amount,
		OccurredAt:        now,
	})
	log.Printf("level=info component=workflow op=send_money outcome=ok sender_id=%s transaction_id=%s notification_id=%s", actor.ID, txID, notifID)
	return tx, notif, nil
}

// RequestMoney appends exactly one Request notification addressed to the
// counterparty's email. No ledger entry is written until the request is
// resolved.
func (s *Service) RequestMoney(ctx context.Context, actor identity.Identity, in domain.TransferInput) (*domain.Notification, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	recipient := normalizeAddress(in.Email)
	notif := &domain.Notification{
		Type:           domain.NotificationRequest,
		RequesterID:    actor.ID,
		RequesterEmail: actor.Email,
		ReceiverID:     s.resolveReceiver(ctx, recipient),
		ReceiverEmail:  recipient,
		RequestInfo: &domain.TransferDetails{
			Name:        in.Name,
			Amount:      in.Amount,
			AccountType: in.AccountType,
			ReturnDate:  in.ReturnDate,
			Date:        now,
		},
		Read:      false,
		Timestamp: now,
	}
	notifID, err := s.store.Insert(ctx, store.NotificationsPath, notif)
	if err != nil {
		return nil, fmt.Errorf("notification write failed: %w", err)
	}
	notif.ID = notifID

	s.publish(ctx, domain.EventRequestCreated, domain.WorkflowEvent{
		EventID:           uuid.NewString(),
		NotificationID:    notifID,
		ActorID:           actor.ID,
		ActorEmail:        actor.Email,
		CounterpartyEmail: recipient,
		Amount:            in.Amount,
		OccurredAt:        now,
	})
	log.Printf("level=info component=workflow op=request_money outcome=ok requester_id=%s notification_id=%s", actor.ID, notifID)
	return notif, nil
}

// AcceptRequest resolves a Request notification: it writes a Send transaction
// to the actor's ledger, a Receive transaction to the requester's ledger, and
// marks the notification read, journaling each step so a partial failure is
// recoverable. A retry after a partial failure resumes the existing journal
// entry instead of starting over, so writes the first attempt already made are
// not repeated. Accepting an already-resolved request fails rather than
// posting a duplicate transaction pair.
func (s *Service) AcceptRequest(ctx context.Context, actor identity.Identity, notificationID string) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	notif, err := s.loadNotification(ctx, actor, notificationID)
	if err != nil {
		return err
	}
	if notif.Type != domain.NotificationRequest || notif.RequestInfo == nil {
		return ErrNotARequest
	}
	if notif.Read {
		return ErrRequestAlreadyResolved
	}

	now := s.now().UTC()
	entry, err := s.unsettledJournalEntry(ctx, notificationID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &domain.AcceptJournalEntry{
			NotificationID: notificationID,
			ActorID:        actor.ID,
			ActorEmail:     actor.Email,
			RequesterID:    notif.RequesterID,
			RequesterEmail: notif.RequesterEmail,
			Details:        *notif.RequestInfo,
			Stage:          domain.StagePending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		journalID, err := s.store.Insert(ctx, store.JournalPath, entry)
		if err != nil {
			return fmt.Errorf("journal write failed: %w", err)
		}
		entry.ID = journalID
	} else {
		log.Printf("level=info component=workflow op=accept_request msg=\"resuming unsettled accept\" journal_id=%s stage=%s notification_id=%s", entry.ID, entry.Stage, notificationID)
	}

	if err := s.runAcceptSequence(ctx, entry); err != nil {
		return err
	}

	s.publish(ctx, domain.EventRequestAccepted, domain.WorkflowEvent{
		EventID:           uuid.NewString(),
		NotificationID:    notificationID,
		ActorID:           actor.ID,
		ActorEmail:        actor.Email,
		CounterpartyEmail: notif.RequesterEmail,
		Amount:            notif.RequestInfo.Amount,
		OccurredAt:        now,
	})
	log.Printf("level=info component=workflow op=accept_request outcome=ok actor_id=%s requester_id=%s notification_id=%s", actor.ID, notif.RequesterID, notificationID)
	return nil
}

// DeclineRequest marks a Request notification read without any ledger write.
// Declining an already-read notification is a no-op.
func (s *Service) DeclineRequest(ctx context.Context, actor identity.Identity, notificationID string) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	notif, err := s.loadNotification(ctx, actor, notificationID)
	if err != nil {
		return err
	}
	if notif.Type != domain.NotificationRequest {
		return ErrNotARequest
	}
	if notif.Read {
		return nil
	}
	if err := s.markRead(ctx, notificationID); err != nil {
		return err
	}

	amount := decimalZeroIfNil(notif.RequestInfo)
	s.publish(ctx, domain.EventRequestDeclined, domain.WorkflowEvent{
		EventID:           uuid.NewString(),
		NotificationID:    notificationID,
		ActorID:           actor.ID,
		ActorEmail:        actor.Email,
		CounterpartyEmail: notif.RequesterEmail,
		Amount:            amount,
		OccurredAt:        s.now().UTC(),
	})
	log.Printf("level=info component=workflow op=decline_request outcome=ok actor_id=%s notification_id=%s", actor.ID, notificationID)
	return nil
}

// MarkNotificationRead dismisses a notification. The read flag transitions
// false to true exactly once; repeated calls are no-ops.
func (s *Service) MarkNotificationRead(ctx context.Context, actor identity.Identity, notificationID string) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	notif, err := s.loadNotification(ctx, actor, notificationID)
	if err != nil {
		return err
	}
	if notif.Read {
		return nil
	}
	return s.markRead(ctx, notificationID)
}

// UnreadNotifications returns the notifications addressed to the actor's email
// that have not been acted on. Ordering is not guaranteed.
func (s *Service) UnreadNotifications(ctx context.Context, actor identity.Identity) ([]domain.Notification, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	docs, err := s.store.Query(ctx, store.NotificationsPath,
		store.Where("receiverEmail", actor.Email),
		store.Where("read", false),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		var notif domain.Notification
		if err := doc.Decode(&notif); err != nil {
			return nil, &store.ReadError{Op: "decode", Path: store.NotificationsPath, Err: err}
		}
		notif.ID = doc.ID
		out = append(out, notif)
	}
	return out, nil
}

// Transactions returns the current snapshot of the actor's ledger.
func (s *Service) Transactions(ctx context.Context, actor identity.Identity) ([]domain.Transaction, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	path := store.UserTransactionsPath(actor.ID)
	docs, err := s.store.Query(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeTransactions(path, docs)
}

// DeleteTransaction removes one entry from the actor's ledger. The embedded
// copy inside any notification is left untouched.
func (s *Service) DeleteTransaction(ctx context.Context, actor identity.Identity, transactionID string) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	return s.store.Delete(ctx, store.UserTransactionsPath(actor.ID), transactionID)
}

// loadNotification fetches a notification and checks it is addressed to the
// acting user. The feed is a shared collection, so the addressing check is the
// only access control at this layer.
func (s *Service) loadNotification(ctx context.Context, actor identity.Identity, notificationID string) (*domain.Notification, error) {
	doc, err := s.store.Get(ctx, store.NotificationsPath, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	var notif domain.Notification
	if err := doc.Decode(&notif); err != nil {
		return nil, &store.ReadError{Op: "decode", Path: store.NotificationsPath, Err: err}
	}
	notif.ID = doc.ID
	if notif.ReceiverEmail != actor.Email {
		return nil, ErrNotAddressedToUser
	}
	return &notif, nil
}

func (s *Service) markRead(ctx context.Context, notificationID string) error {
	return s.store.Update(ctx, store.NotificationsPath, notificationID, store.Update{"read": true})
}

// normalizeAddress folds a recipient email into the directory's canonical
// form. The feed query matches on receiverEmail, so a mixed-case address must
// normalize to the same string the recipient registered with.
func normalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// resolveReceiver pins a stable identifier onto the notification when the
// directory knows the email. A typo'd address resolves to nobody and is
// logged; the notification still carries the email for the feed query.
func (s *Service) resolveReceiver(ctx context.Context, email string) uuid.UUID {
	id, err := s.identity.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			log.Printf("level=warn component=workflow msg=\"receiver email resolves to no registered user\" receiver_email=%s", email)
		} else {
			log.Printf("level=warn component=workflow msg=\"receiver lookup failed\" receiver_email=%s err=%v", email, err)
		}
		return uuid.Nil
	}
	return id.ID
}

func (s *Service) publish(ctx context.Context, routingKey string, event domain.WorkflowEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, rabbitmq.Exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=workflow msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func decodeTransactions(path string, docs []store.Document) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx domain.Transaction
		if err := doc.Decode(&tx); err != nil {
			return nil, &store.ReadError{Op: "decode", Path: path, Err: err}
		}
		tx.ID = doc.ID
		out = append(out, tx)
	}
	return out, nil
}
