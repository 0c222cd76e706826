/**
 * @description
 * This file defines the `DocumentStore` interface, the contract for the hosted
 * document database that holds all durable workflow state. Defining an
 * interface keeps the workflow logic independent of the concrete backend
 * (PostgreSQL in production, in-memory for tests and local development).
 *
 * The store speaks in collections of schemaless JSON documents addressed by
 * path, mirroring how the ledger and notification feed are laid out:
 * one transaction collection per user plus one shared notification feed.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Collection paths used by the workflow.
const (
	NotificationsPath = "notifications"
	JournalPath       = "journal"
)

// UserTransactionsPath returns the per-user ledger collection path.
func UserTransactionsPath(userID uuid.UUID) string {
	return fmt.Sprintf("users/%s/transactions", userID)
}

// ErrNotFound is returned when an update or delete targets a document that
// does not exist in the collection.
var ErrNotFound = errors.New("document not found")

// WriteError wraps a failed insert, update, or delete.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a failed query or watch.
type ReadError struct {
	Op   string
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store read failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Where is shorthand for constructing a Filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Document is one stored record: the generated id plus the raw JSON fields.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document fields into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Update holds the partial field set applied by an update. Fields not present
// are left untouched.
type Update map[string]any

// Subscription is a live view over one collection. The first value on Updates
// is the current snapshot; every subsequent value is a full replacement list,
// not a diff. Callers must Close the subscription when the viewing session
// ends or the standing listener leaks.
type Subscription interface {
	Updates() <-chan []Document
	Err() error
	Close() error
}

// DocumentStore is the boundary to the document database.
type DocumentStore interface {
	// Insert appends a document to the collection and returns the generated id.
	Insert(ctx context.Context, path string, doc any) (string, error)
	// Get returns a single document by id, or ErrNotFound.
	Get(ctx context.Context, path, id string) (Document, error)
	// Query returns the documents matching every filter. Ordering is not
	// guaranteed; callers must not depend on it.
	Query(ctx context.Context, path string, filters ...Filter) ([]Document, error)
	// Update merges the partial field set into an existing document.
	Update(ctx context.Context, path, id string, fields Update) error
	// Delete removes a document.
	Delete(ctx context.Context, path, id string) error
	// Watch opens a live subscription on the collection.
	Watch(ctx context.Context, path string) (Subscription, error)
}
