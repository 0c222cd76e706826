/**
 * @description
 * Live ledger view. WatchLedger wraps the store's collection subscription in a
 * typed handle that delivers the whole decoded transaction list on every
 * change, never an incremental diff. The handle must be closed when the
 * viewing session ends or a standing listener leaks per visited screen.
 */

package app

import (
	"context"
	"sync"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/domain"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// LedgerSubscription is a live view of one user's ledger. The first value on
// Updates is the current snapshot; every later value replaces the whole list.
type LedgerSubscription struct {
	path    string
	inner   store.Subscription
	updates chan []domain.Transaction

	decodeErr error
	done      chan struct{}
	closeOnce sync.Once
}

// WatchLedger opens a live subscription on the actor's transaction
// collection. The subscription ends when the context is cancelled or Close is
// called, whichever comes first.
func (s *Service) WatchLedger(ctx context.Context, actor identity.Identity) (*LedgerSubscription, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	path := store.UserTransactionsPath(actor.ID)
	inner, err := s.store.Watch(ctx, path)
	if err != nil {
		return nil, err
	}

	sub := &LedgerSubscription{
		path:    path,
		inner:   inner,
		updates: make(chan []domain.Transaction),
		done:    make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

func (sub *LedgerSubscription) pump() {
	defer close(sub.updates)
	for docs := range sub.inner.Updates() {
		list, err := decodeTransactions(sub.path, docs)
		if err != nil {
			sub.decodeErr = err
			sub.inner.Close()
			return
		}
		select {
		case sub.updates <- list:
		case <-sub.done:
			return
		}
	}
}

// Updates delivers replace-whole-list views of the ledger.
func (sub *LedgerSubscription) Updates() <-chan []domain.Transaction {
	return sub.updates
}

// Err reports why the subscription ended, if it ended abnormally.
func (sub *LedgerSubscription) Err() error {
	if sub.decodeErr != nil {
		return sub.decodeErr
	}
	return sub.inner.Err()
}

// Close releases the underlying store subscription. Safe to call twice.
func (sub *LedgerSubscription) Close() error {
	sub.closeOnce.Do(func() { close(sub.done) })
	return sub.inner.Close()
}
