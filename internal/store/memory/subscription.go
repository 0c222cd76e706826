package memory

import (
	"sync"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// subscription delivers coalesced whole-list updates to one watcher. If the
// consumer is slower than the write rate, intermediate lists are dropped and
// only the latest state is delivered, which is safe because every update is a
// full replacement.
type subscription struct {
	owner *Store
	path  string

	mu     sync.Mutex
	cond   *sync.Cond
	latest []store.Document
	dirty  bool
	closed bool

	updates chan []store.Document
	done    chan struct{}
}

func newSubscription(owner *Store, path string) *subscription {
	sub := &subscription{
		owner:   owner,
		path:    path,
		updates: make(chan []store.Document, 1),
		done:    make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.run()
	return sub
}

func (s *subscription) run() {
	defer close(s.updates)
	for {
		s.mu.Lock()
		for !s.dirty && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		next := s.latest
		s.dirty = false
		s.mu.Unlock()

		select {
		case s.updates <- next:
		case <-s.done:
			return
		}
	}
}

// push records the newest collection state and wakes the delivery loop.
func (s *subscription) push(list []store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = list
	s.dirty = true
	s.cond.Signal()
}

func (s *subscription) Updates() <-chan []store.Document { return s.updates }

func (s *subscription) Err() error { return nil }

// Close detaches the watcher and stops the delivery loop. Safe to call twice.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()

	s.owner.removeWatcher(s.path, s)
	return nil
}
