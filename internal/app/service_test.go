package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/domain"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store/memory"
)

type testEnv struct {
	store   *memory.Store
	dir     *identity.Directory
	service *Service
	alice   identity.Identity
	bob     identity.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	dir := identity.NewDirectory()
	svc := NewService(st, dir, nil)

	alice, err := dir.Register(context.Background(), "alice@example.com", "password123", "Alice")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := dir.Register(context.Background(), "bob@example.com", "password123", "Bob")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	return &testEnv{store: st, dir: dir, service: svc, alice: alice, bob: bob}
}

func loanInput(email string, amount int64) domain.TransferInput {
	return domain.TransferInput{
		Name:        "Rent",
		Email:       email,
		AccountType: domain.AccountChequing,
		ReturnDate:  time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromInt(amount),
	}
}

func (env *testEnv) ledger(t *testing.T, owner identity.Identity) []domain.Transaction {
	t.Helper()
	txs, err := env.service.Transactions(context.Background(), owner)
	if err != nil {
		t.Fatalf("ledger query for %s: %v", owner.Email, err)
	}
	return txs
}

func (env *testEnv) unread(t *testing.T, owner identity.Identity) []domain.Notification {
	t.Helper()
	notifs, err := env.service.UnreadNotifications(context.Background(), owner)
	if err != nil {
		t.Fatalf("unread query for %s: %v", owner.Email, err)
	}
	return notifs
}

func TestSendMoney_WritesLedgerEntryAndNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, notif, err := env.service.SendMoney(ctx, env.alice, loanInput(env.bob.Email, 50))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}
	if tx.ID == "" || notif.ID == "" {
		t.Fatal("expected generated ids on both documents")
	}
	if tx.Direction != domain.DirectionSend {
		t.Errorf("expected Send direction, got %q", tx.Direction)
	}

	ledger := env.ledger(t, env.alice)
	if len(ledger) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(ledger))
	}
	if !ledger[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("ledger amount = %s, want 50", ledger[0].Amount)
	}

	feed := env.unread(t, env.bob)
	if len(feed) != 1 {
		t.Fatalf("expected one unread notification for bob, got %d", len(feed))
	}
	got := feed[0]
	if got.Type != domain.NotificationSend {
		t.Errorf("notification type = %q, want Send", got.Type)
	}
	if got.SenderEmail != env.alice.Email {
		t.Errorf("sender email = %q, want %q", got.SenderEmail, env.alice.Email)
	}
	if got.ReceiverID != env.bob.ID {
		t.Errorf("receiver id = %s, want %s", got.ReceiverID, env.bob.ID)
	}
	if got.TransactionInfo == nil || !got.TransactionInfo.Amount.Equal(decimal.NewFromInt(50)) {
		t.Error("notification is missing the embedded transfer details")
	}
	if got.RequestInfo != nil {
		t.Error("send notification must not carry request details")
	}
}

func TestSendMoney_UnknownRecipientStillDelivers(t *testing.T) {
	env := newTestEnv(t)

	_, notif, err := env.service.SendMoney(context.Background(), env.alice, loanInput("stranger@example.com", 10))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}
	if notif.ReceiverID.String() != "00000000-0000-0000-0000-000000000000" {
		t.Errorf("expected nil receiver id for unknown email, got %s", notif.ReceiverID)
	}
	if notif.ReceiverEmail != "stranger@example.com" {
		t.Errorf("receiver email = %q", notif.ReceiverEmail)
	}
}

func TestSendMoney_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	in := loanInput(env.bob.Email, 50)
	in.Amount = decimal.NewFromInt(-5)

	_, _, err := env.service.SendMoney(context.Background(), env.alice, in)
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(env.ledger(t, env.alice)) != 0 {
		t.Error("invalid input must not write to the ledger")
	}
}

func TestSendMoney_RequiresAuthenticatedActor(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.service.SendMoney(context.Background(), identity.Identity{}, loanInput(env.bob.Email, 50))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSendMoney_NotificationFailureIsPartial(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailNextInsert(store.NotificationsPath, errors.New("boom"))

	_, _, err := env.service.SendMoney(context.Background(), env.alice, loanInput(env.bob.Email, 50))
	var partial *PartialWorkflowError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWorkflowError, got %v", err)
	}
	if partial.Stage != "notification" {
		t.Errorf("partial stage = %q, want notification", partial.Stage)
	}

	// The ledger write happened first and stays durable.
	if len(env.ledger(t, env.alice)) != 1 {
		t.Error("expected the ledger entry to survive the notification failure")
	}
	if len(env.unread(t, env.bob)) != 0 {
		t.Error("expected no notification after the failed write")
	}
}

func TestRequestMoney_CreatesOnlyANotification(t *testing.T) {
	env := newTestEnv(t)

	notif, err := env.service.RequestMoney(context.Background(), env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}
	if notif.Type != domain.NotificationRequest {
		t.Errorf("notification type = %q, want Request", notif.Type)
	}
	if notif.RequesterID != env.bob.ID {
		t.Errorf("requester id = %s, want %s", notif.RequesterID, env.bob.ID)
	}
	if notif.RequestInfo == nil || !notif.RequestInfo.Amount.Equal(decimal.NewFromInt(20)) {
		t.Error("request notification is missing the embedded request details")
	}

	if len(env.ledger(t, env.bob)) != 0 {
		t.Error("a request must not touch the requester's ledger")
	}
	if len(env.ledger(t, env.alice)) != 0 {
		t.Error("a request must not touch the recipient's ledger")
	}
	if len(env.unread(t, env.alice)) != 1 {
		t.Error("expected the request to appear in alice's unread feed")
	}
}

func TestAcceptRequest_PostsBothLedgersAndMarksRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	if err := env.service.AcceptRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("AcceptRequest returned error: %v", err)
	}

	aliceLedger := env.ledger(t, env.alice)
	if len(aliceLedger) != 1 {
		t.Fatalf("expected one entry in alice's ledger, got %d", len(aliceLedger))
	}
	if aliceLedger[0].Direction != domain.DirectionSend {
		t.Errorf("alice's entry direction = %q, want Send", aliceLedger[0].Direction)
	}
	if aliceLedger[0].Email != env.bob.Email {
		t.Errorf("alice's entry counterparty = %q, want %q", aliceLedger[0].Email, env.bob.Email)
	}

	bobLedger := env.ledger(t, env.bob)
	if len(bobLedger) != 1 {
		t.Fatalf("expected one entry in bob's ledger, got %d", len(bobLedger))
	}
	if bobLedger[0].Direction != domain.DirectionReceive {
		t.Errorf("bob's entry direction = %q, want Receive", bobLedger[0].Direction)
	}
	if !bobLedger[0].Amount.Equal(aliceLedger[0].Amount) {
		t.Error("both ledger entries must carry the same amount")
	}

	if len(env.unread(t, env.alice)) != 0 {
		t.Error("accepted request must leave the unread feed")
	}
}

func TestAcceptRequest_AlreadyResolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}
	if err := env.service.AcceptRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	err = env.service.AcceptRequest(ctx, env.alice, notif.ID)
	if !errors.Is(err, ErrRequestAlreadyResolved) {
		t.Fatalf("expected ErrRequestAlreadyResolved, got %v", err)
	}
	if len(env.ledger(t, env.alice)) != 1 || len(env.ledger(t, env.bob)) != 1 {
		t.Error("repeated accept must not post duplicate transactions")
	}
}

func TestAcceptRequest_RejectsSendNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, notif, err := env.service.SendMoney(ctx, env.alice, loanInput(env.bob.Email, 50))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}

	if err := env.service.AcceptRequest(ctx, env.bob, notif.ID); !errors.Is(err, ErrNotARequest) {
		t.Fatalf("expected ErrNotARequest, got %v", err)
	}
}

func TestAcceptRequest_RejectsWrongRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	// Bob raised the request; only alice may resolve it.
	if err := env.service.AcceptRequest(ctx, env.bob, notif.ID); !errors.Is(err, ErrNotAddressedToUser) {
		t.Fatalf("expected ErrNotAddressedToUser, got %v", err)
	}
}

func TestAcceptRequest_UnknownNotification(t *testing.T) {
	env := newTestEnv(t)
	err := env.service.AcceptRequest(context.Background(), env.alice, "no-such-id")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestAcceptRequest_PartialFailureIsRecoverable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	// The second ledger write (requester side) fails partway through accept.
	env.store.FailNextInsert(store.UserTransactionsPath(env.bob.ID), errors.New("boom"))

	err = env.service.AcceptRequest(ctx, env.alice, notif.ID)
	var partial *PartialWorkflowError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWorkflowError, got %v", err)
	}
	if partial.Stage != "requester_ledger" {
		t.Errorf("partial stage = %q, want requester_ledger", partial.Stage)
	}
	if len(env.ledger(t, env.alice)) != 1 {
		t.Fatal("alice's entry must be durable despite the later failure")
	}
	if len(env.ledger(t, env.bob)) != 0 {
		t.Fatal("bob's entry must be absent after the failed write")
	}

	recovered, err := env.service.RecoverPendingAccepts(ctx)
	if err != nil {
		t.Fatalf("RecoverPendingAccepts returned error: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	// Recovery resumes from the recorded stage: no duplicate on alice's side,
	// bob's entry posted, notification read.
	if len(env.ledger(t, env.alice)) != 1 {
		t.Error("recovery must not duplicate alice's entry")
	}
	if len(env.ledger(t, env.bob)) != 1 {
		t.Error("recovery must post bob's missing entry")
	}
	if len(env.unread(t, env.alice)) != 0 {
		t.Error("recovery must mark the notification read")
	}
}

func TestAcceptRequest_RetryAfterFailureDoesNotDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	// The first ledger write fails, leaving a journal entry at pending.
	env.store.FailNextInsert(store.UserTransactionsPath(env.alice.ID), errors.New("boom"))
	err = env.service.AcceptRequest(ctx, env.alice, notif.ID)
	var partial *PartialWorkflowError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWorkflowError, got %v", err)
	}

	// The user retries; the retry must resume the original journal entry.
	if err := env.service.AcceptRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("retry AcceptRequest returned error: %v", err)
	}
	if len(env.ledger(t, env.alice)) != 1 || len(env.ledger(t, env.bob)) != 1 {
		t.Fatal("retry must post exactly one transaction per participant")
	}

	// Startup replay finds nothing left to do and must not post a second pair.
	recovered, err := env.service.RecoverPendingAccepts(ctx)
	if err != nil {
		t.Fatalf("RecoverPendingAccepts returned error: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if len(env.ledger(t, env.alice)) != 1 {
		t.Errorf("alice ledger has %d Send entries after replay, want 1", len(env.ledger(t, env.alice)))
	}
	if len(env.ledger(t, env.bob)) != 1 {
		t.Errorf("bob ledger has %d Receive entries after replay, want 1", len(env.ledger(t, env.bob)))
	}
}

func TestAcceptRequest_RetryResumesPartialEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	// The second ledger write fails, so alice's entry is already durable.
	env.store.FailNextInsert(store.UserTransactionsPath(env.bob.ID), errors.New("boom"))
	err = env.service.AcceptRequest(ctx, env.alice, notif.ID)
	var partial *PartialWorkflowError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWorkflowError, got %v", err)
	}
	if len(env.ledger(t, env.alice)) != 1 {
		t.Fatal("alice's entry must be durable after the partial failure")
	}

	// The retry resumes from the recorded stage instead of re-posting it.
	if err := env.service.AcceptRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("retry AcceptRequest returned error: %v", err)
	}
	if len(env.ledger(t, env.alice)) != 1 {
		t.Error("retry must not duplicate alice's entry")
	}
	if len(env.ledger(t, env.bob)) != 1 {
		t.Error("retry must post bob's missing entry")
	}
	if len(env.unread(t, env.alice)) != 0 {
		t.Error("retry must mark the notification read")
	}
}

func TestRecoverPendingAccepts_AbandonsStaleEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}
	if err := env.service.DeclineRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("DeclineRequest returned error: %v", err)
	}

	// A pending entry for an already-resolved notification owes nothing;
	// replaying it would post a pair the workflow never completed.
	stale := &domain.AcceptJournalEntry{
		NotificationID: notif.ID,
		ActorID:        env.alice.ID,
		ActorEmail:     env.alice.Email,
		RequesterID:    env.bob.ID,
		RequesterEmail: env.bob.Email,
		Details:        *notif.RequestInfo,
		Stage:          domain.StagePending,
	}
	if _, err := env.store.Insert(ctx, store.JournalPath, stale); err != nil {
		t.Fatalf("journal insert returned error: %v", err)
	}

	recovered, err := env.service.RecoverPendingAccepts(ctx)
	if err != nil {
		t.Fatalf("RecoverPendingAccepts returned error: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if len(env.ledger(t, env.alice)) != 0 || len(env.ledger(t, env.bob)) != 0 {
		t.Fatal("abandoning a stale entry must not post ledger entries")
	}

	// The stale entry is settled, so a second replay skips it entirely.
	if recovered, err = env.service.RecoverPendingAccepts(ctx); err != nil || recovered != 0 {
		t.Fatalf("second replay: got (%d, %v), want (0, nil)", recovered, err)
	}
}

// staleNotificationStore serves a pinned stale copy of a notification for a
// bounded number of Gets, standing in for a second session whose view predates
// the read-mark.
type staleNotificationStore struct {
	*memory.Store
	stale     store.Document
	staleGets int
}

func (s *staleNotificationStore) Get(ctx context.Context, path, id string) (store.Document, error) {
	if path == store.NotificationsPath && s.staleGets > 0 {
		s.staleGets--
		return s.stale, nil
	}
	return s.Store.Get(ctx, path, id)
}

func TestAcceptRequest_StaleUnreadViewAllowsDoubleResolution(t *testing.T) {
	// The store has no compare-and-set, so a session holding a stale unread
	// view of the notification passes the resolved check and posts a second
	// transaction pair. This is the known weakness of the accept path: the
	// journal makes each pair recoverable and the API throttle blunts
	// double-click storms, but the race itself is not closed.
	mem := memory.New()
	dir := identity.NewDirectory()
	wrapped := &staleNotificationStore{Store: mem}
	svc := NewService(wrapped, dir, nil)
	ctx := context.Background()

	alice, err := dir.Register(ctx, "alice@example.com", "password123", "Alice")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := dir.Register(ctx, "bob@example.com", "password123", "Bob")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	notif, err := svc.RequestMoney(ctx, bob, loanInput(alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	doc, err := mem.Get(ctx, store.NotificationsPath, notif.ID)
	if err != nil {
		t.Fatalf("fetch notification: %v", err)
	}
	wrapped.stale = doc
	wrapped.staleGets = 2

	if err := svc.AcceptRequest(ctx, alice, notif.ID); err != nil {
		t.Fatalf("first accept returned error: %v", err)
	}
	if err := svc.AcceptRequest(ctx, alice, notif.ID); err != nil {
		t.Fatalf("second accept with stale view returned error: %v", err)
	}

	aliceLedger, err := svc.Transactions(ctx, alice)
	if err != nil {
		t.Fatalf("ledger query: %v", err)
	}
	bobLedger, err := svc.Transactions(ctx, bob)
	if err != nil {
		t.Fatalf("ledger query: %v", err)
	}
	if len(aliceLedger) != 2 || len(bobLedger) != 2 {
		t.Fatalf("stale-view double accept posted %d/%d entries; the race is expected to double the pair", len(aliceLedger), len(bobLedger))
	}
}

func TestSendMoney_NormalizesRecipientAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, notif, err := env.service.SendMoney(ctx, env.alice, loanInput("  Bob@Example.COM ", 50))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}
	if notif.ReceiverEmail != env.bob.Email {
		t.Errorf("receiver email = %q, want %q", notif.ReceiverEmail, env.bob.Email)
	}
	if notif.ReceiverID != env.bob.ID {
		t.Errorf("receiver id = %s, want %s", notif.ReceiverID, env.bob.ID)
	}
	if len(env.unread(t, env.bob)) != 1 {
		t.Error("a mixed-case address must still reach the recipient's feed")
	}
}

func TestRequestMoney_NormalizesRecipientAddress(t *testing.T) {
	env := newTestEnv(t)

	notif, err := env.service.RequestMoney(context.Background(), env.bob, loanInput("ALICE@example.com", 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}
	if notif.ReceiverEmail != env.alice.Email {
		t.Errorf("receiver email = %q, want %q", notif.ReceiverEmail, env.alice.Email)
	}
	if len(env.unread(t, env.alice)) != 1 {
		t.Error("a mixed-case address must still reach the recipient's feed")
	}
}

func TestRecoverPendingAccepts_SkipsSettledEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}
	if err := env.service.AcceptRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("AcceptRequest returned error: %v", err)
	}

	recovered, err := env.service.RecoverPendingAccepts(ctx)
	if err != nil {
		t.Fatalf("RecoverPendingAccepts returned error: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if len(env.ledger(t, env.alice)) != 1 || len(env.ledger(t, env.bob)) != 1 {
		t.Error("replaying a settled accept must not post duplicates")
	}
}

func TestDeclineRequest_MarksReadWithoutLedgerWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notif, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20))
	if err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	if err := env.service.DeclineRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("DeclineRequest returned error: %v", err)
	}
	if len(env.ledger(t, env.alice)) != 0 || len(env.ledger(t, env.bob)) != 0 {
		t.Error("decline must not touch either ledger")
	}
	if len(env.unread(t, env.alice)) != 0 {
		t.Error("declined request must leave the unread feed")
	}

	// Declining again is a no-op, not an error.
	if err := env.service.DeclineRequest(ctx, env.alice, notif.ID); err != nil {
		t.Fatalf("second decline should be a no-op, got %v", err)
	}
}

func TestMarkNotificationRead_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, notif, err := env.service.SendMoney(ctx, env.alice, loanInput(env.bob.Email, 50))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}

	if err := env.service.MarkNotificationRead(ctx, env.bob, notif.ID); err != nil {
		t.Fatalf("MarkNotificationRead returned error: %v", err)
	}
	if err := env.service.MarkNotificationRead(ctx, env.bob, notif.ID); err != nil {
		t.Fatalf("repeated MarkNotificationRead should be a no-op, got %v", err)
	}
	if len(env.unread(t, env.bob)) != 0 {
		t.Error("read notification must leave the unread feed")
	}
}

func TestUnreadNotifications_ScopedToRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.service.SendMoney(ctx, env.alice, loanInput(env.bob.Email, 50)); err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}
	if _, err := env.service.RequestMoney(ctx, env.bob, loanInput(env.alice.Email, 20)); err != nil {
		t.Fatalf("RequestMoney returned error: %v", err)
	}

	if got := len(env.unread(t, env.bob)); got != 1 {
		t.Errorf("bob's feed length = %d, want 1", got)
	}
	if got := len(env.unread(t, env.alice)); got != 1 {
		t.Errorf("alice's feed length = %d, want 1", got)
	}
}

func TestDeleteTransaction_RemovesLedgerEntryOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, _, err := env.service.SendMoney(ctx, env.alice, loanInput(env.bob.Email, 50))
	if err != nil {
		t.Fatalf("SendMoney returned error: %v", err)
	}

	if err := env.service.DeleteTransaction(ctx, env.alice, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction returned error: %v", err)
	}
	if len(env.ledger(t, env.alice)) != 0 {
		t.Error("expected the ledger entry to be gone")
	}

	// The embedded copy inside the notification is untouched.
	feed := env.unread(t, env.bob)
	if len(feed) != 1 || feed[0].TransactionInfo == nil {
		t.Error("deleting a ledger entry must not alter the notification")
	}

	if err := env.service.DeleteTransaction(ctx, env.alice, tx.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}
