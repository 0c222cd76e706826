/**
 * @description
 * In-process implementation of the Provider interface. It keeps the user
 * directory in memory with bcrypt password hashes and fans session changes out
 * to registered observers. In a hosted deployment this seat is taken by the
 * external identity service; the directory exists so the workflow and its
 * tests have a complete boundary to run against.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: password hashing.
 */

package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	identity     Identity
	passwordHash []byte
}

// Directory is a thread-safe in-memory identity provider.
type Directory struct {
	mu        sync.RWMutex
	byEmail   map[string]*account
	byID      map[uuid.UUID]*account
	observers map[int]SessionObserver
	nextObs   int
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byEmail:   make(map[string]*account),
		byID:      make(map[uuid.UUID]*account),
		observers: make(map[int]SessionObserver),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new identity and signs it in.
func (d *Directory) Register(ctx context.Context, email, password, displayName string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Identity{}, ErrInvalidCredentials
	}
	if len(password) < 8 {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}

	d.mu.Lock()
	if _, exists := d.byEmail[email]; exists {
		d.mu.Unlock()
		return Identity{}, ErrEmailTaken
	}
	acct := &account{
		identity: Identity{
			ID:          uuid.New(),
			Email:       email,
			DisplayName: strings.TrimSpace(displayName),
		},
		passwordHash: hash,
	}
	d.byEmail[email] = acct
	d.byID[acct.identity.ID] = acct
	id := acct.identity
	d.mu.Unlock()

	d.notify(id)
	return id, nil
}

// Authenticate verifies the credentials and signs the identity in.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	d.mu.RLock()
	acct, ok := d.byEmail[normalizeEmail(email)]
	d.mu.RUnlock()
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	d.mu.RLock()
	id := acct.identity
	d.mu.RUnlock()
	d.notify(id)
	return id, nil
}

// LookupByEmail resolves an email to a stable identity without authenticating.
func (d *Directory) LookupByEmail(ctx context.Context, email string) (Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return Identity{}, ErrUnknownUser
	}
	return acct.identity, nil
}

// UpdateProfile changes the display name on an existing identity.
func (d *Directory) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct, ok := d.byID[userID]
	if !ok {
		return Identity{}, ErrUnknownUser
	}
	acct.identity.DisplayName = strings.TrimSpace(displayName)
	return acct.identity, nil
}

// ChangePassword replaces the password for an existing identity.
func (d *Directory) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acct, ok := d.byID[userID]
	if !ok {
		return ErrUnknownUser
	}
	acct.passwordHash = hash
	return nil
}

// Observe registers a session-change observer and returns its cancel func.
func (d *Directory) Observe(fn SessionObserver) (cancel func()) {
	d.mu.Lock()
	key := d.nextObs
	d.nextObs++
	d.observers[key] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, key)
		d.mu.Unlock()
	}
}

// EndSession signs the identity out and notifies observers with the zero
// Identity.
func (d *Directory) EndSession(ctx context.Context, userID uuid.UUID) error {
	d.mu.RLock()
	_, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return ErrUnknownUser
	}
	d.notify(Identity{})
	return nil
}

func (d *Directory) notify(id Identity) {
	d.mu.RLock()
	observers := make([]SessionObserver, 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.RUnlock()

	for _, fn := range observers {
		fn(id)
	}
}

// Compile-time check: Directory implements the Provider interface.
var _ Provider = (*Directory)(nil)
