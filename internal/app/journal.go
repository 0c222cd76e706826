/**
 * @description
 * The accept journal. The accept path performs three writes that must happen
 * together (two ledger entries plus the notification read-mark) against a
 * store with no cross-document transactions. Before touching either ledger,
 * the service records its intent in the journal collection and advances the
 * entry's stage after each completed write. A crash or store failure partway
 * leaves a journal entry whose stage says exactly which writes are still
 * owed, and RecoverPendingAccepts replays only those.
 *
 * The journal does not guard against two sessions accepting the same
 * notification concurrently: both would pass the unread check before either
 * marks the notification read. That race is inherited from the store's lack
 * of a compare-and-set primitive and is surfaced in the tests.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/domain"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// unsettledJournalEntry returns the journal entry a previous accept attempt
// left behind for the notification, if any. The accept path resumes it rather
// than inserting a second entry, so a user retry after a partial failure
// cannot re-post writes the first attempt already made.
func (s *Service) unsettledJournalEntry(ctx context.Context, notificationID string) (*domain.AcceptJournalEntry, error) {
	docs, err := s.store.Query(ctx, store.JournalPath, store.Where("notificationId", notificationID))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		var entry domain.AcceptJournalEntry
		if err := doc.Decode(&entry); err != nil {
			return nil, &store.ReadError{Op: "decode", Path: store.JournalPath, Err: err}
		}
		if entry.Stage == domain.StageSettled {
			continue
		}
		entry.ID = doc.ID
		return &entry, nil
	}
	return nil, nil
}

// runAcceptSequence performs the accept writes the journal entry still owes,
// advancing the stage after each one. It is called both for fresh accepts
// (stage pending) and for recovery replays of partially-completed entries.
func (s *Service) runAcceptSequence(ctx context.Context, entry *domain.AcceptJournalEntry) error {
	details := entry.Details

	if entry.Stage == domain.StagePending {
		tx := &domain.Transaction{
			Name:        details.Name,
			Email:       entry.RequesterEmail,
			AccountType: details.AccountType,
			ReturnDate:  details.ReturnDate,
			Amount:      details.Amount,
			Direction:   domain.DirectionSend,
			Timestamp:   s.now().UTC(),
		}
		if _, err := s.store.Insert(ctx, store.UserTransactionsPath(entry.ActorID), tx); err != nil {
			return &PartialWorkflowError{Stage: "receiver_ledger", Err: err}
		}
		s.advance(ctx, entry, domain.StageReceiverPosted)
	}

	if entry.Stage == domain.StageReceiverPosted {
		tx := &domain.Transaction{
			Name:        details.Name,
			Email:       entry.ActorEmail,
			AccountType: details.AccountType,
			ReturnDate:  details.ReturnDate,
			Amount:      details.Amount,
			Direction:   domain.DirectionReceive,
			Timestamp:   s.now().UTC(),
		}
		if _, err := s.store.Insert(ctx, store.UserTransactionsPath(entry.RequesterID), tx); err != nil {
			return &PartialWorkflowError{Stage: "requester_ledger", Err: err}
		}
		s.advance(ctx, entry, domain.StageRequesterPosted)
	}

	if entry.Stage == domain.StageRequesterPosted {
		if err := s.markRead(ctx, entry.NotificationID); err != nil {
			return &PartialWorkflowError{Stage: "read_mark", Err: err}
		}
		s.advance(ctx, entry, domain.StageSettled)
	}

	return nil
}

// advance persists the entry's new stage. A failed stage update is logged but
// does not abort the sequence: completing the user-visible writes takes
// precedence, at the cost that a later replay may re-post a ledger entry.
func (s *Service) advance(ctx context.Context, entry *domain.AcceptJournalEntry, stage domain.AcceptStage) {
	entry.Stage = stage
	entry.UpdatedAt = s.now().UTC()
	err := s.store.Update(ctx, store.JournalPath, entry.ID, store.Update{
		"stage":     stage,
		"updatedAt": entry.UpdatedAt,
	})
	if err != nil {
		log.Printf("level=error component=workflow op=accept_journal msg=\"stage update failed\" journal_id=%s stage=%s err=%v", entry.ID, stage, err)
	}
}

// RecoverPendingAccepts replays every journal entry that has not reached the
// settled stage and returns how many were completed. Each replay resumes from
// the entry's recorded stage, so writes that already happened are not
// repeated.
func (s *Service) RecoverPendingAccepts(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, store.JournalPath)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, doc := range docs {
		var entry domain.AcceptJournalEntry
		if err := doc.Decode(&entry); err != nil {
			return recovered, &store.ReadError{Op: "decode", Path: store.JournalPath, Err: err}
		}
		entry.ID = doc.ID
		if entry.Stage == domain.StageSettled {
			continue
		}

		// An entry still at pending whose notification is already resolved is
		// stale: the writes it owes were completed under another entry.
		// Replaying it would post a duplicate transaction pair.
		if entry.Stage == domain.StagePending {
			resolved, err := s.notificationResolved(ctx, entry.NotificationID)
			if err != nil {
				return recovered, err
			}
			if resolved {
				log.Printf("level=info component=workflow op=recover_accept msg=\"abandoning stale journal entry\" journal_id=%s notification_id=%s", entry.ID, entry.NotificationID)
				s.advance(ctx, &entry, domain.StageSettled)
				continue
			}
		}

		log.Printf("level=info component=workflow op=recover_accept msg=\"replaying unsettled accept\" journal_id=%s stage=%s notification_id=%s", entry.ID, entry.Stage, entry.NotificationID)
		if err := s.runAcceptSequence(ctx, &entry); err != nil {
			return recovered, fmt.Errorf("replay of journal entry %s: %w", entry.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

// notificationResolved reports whether the notification has been acted on. A
// deleted notification counts as resolved: nothing is owed on its behalf.
func (s *Service) notificationResolved(ctx context.Context, notificationID string) (bool, error) {
	doc, err := s.store.Get(ctx, store.NotificationsPath, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	var notif domain.Notification
	if err := doc.Decode(&notif); err != nil {
		return false, &store.ReadError{Op: "decode", Path: store.NotificationsPath, Err: err}
	}
	return notif.Read, nil
}

func decimalZeroIfNil(details *domain.TransferDetails) decimal.Decimal {
	if details == nil {
		return decimal.Zero
	}
	return details.Amount
}
