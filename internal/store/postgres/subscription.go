package postgres

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// subscription owns one LISTEN connection for the lifetime of a watch. Closing
// the subscription cancels the wait loop and releases the connection back to
// the pool.
type subscription struct {
	owner *Store
	conn  *pgxpool.Conn
	path  string

	updates chan []store.Document
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	err       error
	cancelled bool
}

func newSubscription(owner *Store, conn *pgxpool.Conn, path string) *subscription {
	return &subscription{
		owner:   owner,
		conn:    conn,
		path:    path,
		updates: make(chan []store.Document, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscription) run(parent context.Context, snapshot []store.Document) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if s.cancelled {
		cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.conn.Release()
		close(s.updates)
		close(s.done)
	}()

	if !s.deliver(ctx, snapshot) {
		return
	}

	for {
		if _, err := s.conn.Conn().WaitForNotification(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				s.setErr(&store.ReadError{Op: "watch", Path: s.path, Err: err})
			}
			return
		}
		list, err := s.owner.Query(ctx, s.path)
		if err != nil {
			s.setErr(err)
			return
		}
		if !s.deliver(ctx, list) {
			return
		}
	}
}

func (s *subscription) deliver(ctx context.Context, list []store.Document) bool {
	select {
	case s.updates <- list:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *subscription) Updates() <-chan []store.Document { return s.updates }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the wait loop and releases the LISTEN connection. Safe to call
// more than once.
func (s *subscription) Close() error {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
	return nil
}

func logNotifyFailure(path string, err error) {
	log.Printf("level=warn component=postgres_store msg=\"pg_notify failed\" collection=%s err=%v", path, err)
}

// Compile-time check: Store implements the DocumentStore interface.
var _ store.DocumentStore = (*Store)(nil)
