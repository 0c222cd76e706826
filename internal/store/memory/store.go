/**
 * @description
 * In-memory implementation of the DocumentStore interface. It backs the test
 * suite and the `STORE_BACKEND=memory` development mode. Documents are held as
 * raw JSON per collection so the matching semantics are identical to the
 * JSONB-backed production store.
 */

package memory

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

type collection struct {
	order []string
	docs  map[string]json.RawMessage
}

// Store is a thread-safe in-memory document store with live watch support.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	watchers    map[string][]*subscription

	// FailNextInsert, when set, makes the next Insert on the given path fail.
	// Tests use this to force partial workflow failures.
	failInsert map[string]error
	failUpdate map[string]error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		watchers:    make(map[string][]*subscription),
		failInsert:  make(map[string]error),
		failUpdate:  make(map[string]error),
	}
}

// FailNextInsert arms a one-shot insert failure for the collection.
func (s *Store) FailNextInsert(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert[path] = err
}

// FailNextUpdate arms a one-shot update failure for the collection.
func (s *Store) FailNextUpdate(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate[path] = err
}

func (s *Store) coll(path string) *collection {
	c, ok := s.collections[path]
	if !ok {
		c = &collection{docs: make(map[string]json.RawMessage)}
		s.collections[path] = c
	}
	return c
}

// Insert appends a document and returns its generated id.
func (s *Store) Insert(ctx context.Context, path string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", &store.WriteError{Op: "insert", Path: path, Err: err}
	}

	s.mu.Lock()
	if failErr, ok := s.failInsert[path]; ok {
		delete(s.failInsert, path)
		s.mu.Unlock()
		return "", &store.WriteError{Op: "insert", Path: path, Err: failErr}
	}
	id := uuid.NewString()
	c := s.coll(path)
	c.docs[id] = data
	c.order = append(c.order, id)
	s.notifyLocked(path)
	s.mu.Unlock()

	return id, nil
}

// Get returns a single document by id.
func (s *Store) Get(ctx context.Context, path, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[path]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: append(json.RawMessage(nil), data...)}, nil
}

// Query returns documents matching every equality filter, in insertion order.
func (s *Store) Query(ctx context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(path, filters...)
}

func (s *Store) queryLocked(path string, filters ...store.Filter) ([]store.Document, error) {
	c, ok := s.collections[path]
	if !ok {
		return nil, nil
	}
	var out []store.Document
	for _, id := range c.order {
		data, ok := c.docs[id]
		if !ok {
			continue
		}
		match, err := matches(data, filters)
		if err != nil {
			return nil, &store.ReadError{Op: "query", Path: path, Err: err}
		}
		if match {
			out = append(out, store.Document{ID: id, Data: append(json.RawMessage(nil), data...)})
		}
	}
	return out, nil
}

// Update merges the partial field set into an existing document.
func (s *Store) Update(ctx context.Context, path, id string, fields store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if failErr, ok := s.failUpdate[path]; ok {
		delete(s.failUpdate, path)
		return &store.WriteError{Op: "update", Path: path, Err: failErr}
	}

	c, ok := s.collections[path]
	if !ok {
		return store.ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return store.ErrNotFound
	}

	var current map[string]any
	if err := json.Unmarshal(data, &current); err != nil {
		return &store.WriteError{Op: "update", Path: path, Err: err}
	}
	for k, v := range fields {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return &store.WriteError{Op: "update", Path: path, Err: err}
	}
	c.docs[id] = merged
	s.notifyLocked(path)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, path, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[path]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.notifyLocked(path)
	return nil
}

// Watch opens a live subscription on the collection. The snapshot is delivered
// first; every change to the collection delivers the full list again.
func (s *Store) Watch(ctx context.Context, path string) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.queryLocked(path)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(s, path)
	s.watchers[path] = append(s.watchers[path], sub)
	sub.push(snapshot)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

// notifyLocked fans the current collection state out to every watcher.
// Caller holds s.mu.
func (s *Store) notifyLocked(path string) {
	subs := s.watchers[path]
	if len(subs) == 0 {
		return
	}
	snapshot, err := s.queryLocked(path)
	if err != nil {
		return
	}
	for _, sub := range subs {
		sub.push(snapshot)
	}
}

func (s *Store) removeWatcher(path string, target *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.watchers[path]
	for i, sub := range subs {
		if sub == target {
			s.watchers[path] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// matches reports whether the raw document satisfies every equality filter.
// Filter values are normalized through a JSON round-trip so that e.g. bool and
// string comparisons behave the same as in the JSONB store.
func matches(data json.RawMessage, filters []store.Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, err
	}
	for _, f := range filters {
		normalized, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		if !reflect.DeepEqual(fields[f.Field], normalized) {
			return false, nil
		}
	}
	return true, nil
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Compile-time check: Store implements the DocumentStore interface.
var _ store.DocumentStore = (*Store)(nil)
