/**
 * @description
 * PostgreSQL implementation of the DocumentStore interface. Documents live in
 * a single `documents` table keyed by (collection, id) with the fields held as
 * JSONB, so equality predicates map onto JSONB containment. Every write emits
 * a pg_notify on the collection's channel; Watch holds a dedicated LISTEN
 * connection and re-queries the collection on each notification, which yields
 * the replace-whole-list delivery the workflow expects.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 */

package postgres

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/store"
)

// Store is the JSONB-backed document store.
type Store struct {
	db *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			fields     JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
	`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return &store.WriteError{Op: "ensure_schema", Path: "documents", Err: err}
	}
	return nil
}

// channelFor maps a collection path onto a pg_notify channel name. Paths carry
// slashes and ids, so the channel is a fixed-charset digest instead.
func channelFor(path string) string {
	sum := md5.Sum([]byte(path))
	return "doc_" + hex.EncodeToString(sum[:])[:16]
}

// Insert appends a document and returns the generated id.
func (s *Store) Insert(ctx context.Context, path string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", &store.WriteError{Op: "insert", Path: path, Err: err}
	}
	id := uuid.NewString()
	// JSON goes over the wire as text so the jsonb column parses it rather
	// than receiving a bytea literal.
	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)`,
		path, id, string(data),
	)
	if err != nil {
		return "", &store.WriteError{Op: "insert", Path: path, Err: err}
	}
	s.notify(ctx, path)
	return id, nil
}

// Get returns a single document by id.
func (s *Store) Get(ctx context.Context, path, id string) (store.Document, error) {
	var doc store.Document
	err := s.db.QueryRow(ctx,
		`SELECT id, fields FROM documents WHERE collection = $1 AND id = $2`,
		path, id,
	).Scan(&doc.ID, &doc.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, &store.ReadError{Op: "get", Path: path, Err: err}
	}
	return doc, nil
}

// Query returns the documents matching every equality filter.
func (s *Store) Query(ctx context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	query := `SELECT id, fields FROM documents WHERE collection = $1`
	args := []any{path}

	if len(filters) > 0 {
		contains := make(map[string]any, len(filters))
		for _, f := range filters {
			contains[f.Field] = f.Value
		}
		predicate, err := json.Marshal(contains)
		if err != nil {
			return nil, &store.ReadError{Op: "query", Path: path, Err: err}
		}
		query += ` AND fields @> $2`
		args = append(args, string(predicate))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &store.ReadError{Op: "query", Path: path, Err: err}
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, &store.ReadError{Op: "query", Path: path, Err: err}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.ReadError{Op: "query", Path: path, Err: err}
	}
	return out, nil
}

// Update merges the partial field set into an existing document.
func (s *Store) Update(ctx context.Context, path, id string, fields store.Update) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return &store.WriteError{Op: "update", Path: path, Err: err}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET fields = fields || $3 WHERE collection = $1 AND id = $2`,
		path, id, string(patch),
	)
	if err != nil {
		return &store.WriteError{Op: "update", Path: path, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notify(ctx, path)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, path, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		path, id,
	)
	if err != nil {
		return &store.WriteError{Op: "delete", Path: path, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notify(ctx, path)
	return nil
}

// notify wakes listeners on the collection channel. A lost notification only
// delays a watcher until the next write, so failures are not propagated.
func (s *Store) notify(ctx context.Context, path string) {
	if _, err := s.db.Exec(ctx, `SELECT pg_notify($1, $2)`, channelFor(path), path); err != nil {
		logNotifyFailure(path, err)
	}
}

// Watch opens a live subscription on the collection using a dedicated LISTEN
// connection.
func (s *Store) Watch(ctx context.Context, path string) (store.Subscription, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, &store.ReadError{Op: "watch", Path: path, Err: err}
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, channelFor(path))); err != nil {
		conn.Release()
		return nil, &store.ReadError{Op: "watch", Path: path, Err: err}
	}

	snapshot, err := s.Query(ctx, path)
	if err != nil {
		conn.Release()
		return nil, err
	}

	sub := newSubscription(s, conn, path)
	go sub.run(ctx, snapshot)
	return sub, nil
}
