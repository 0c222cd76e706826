/**
 * @description
 * This package defines the Identity Provider boundary. The workflow treats the
 * returned identity as opaque and stable for the duration of a session; every
 * workflow operation receives the acting Identity explicitly instead of
 * reading ambient session state.
 */

package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUnknownUser        = errors.New("no user registered for email")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Identity is the session identity issued by the provider.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}

// IsZero reports whether no authenticated identity is present.
func (id Identity) IsZero() bool {
	return id.ID == uuid.Nil
}

// SessionObserver receives the identity on sign-in and the zero Identity on
// sign-out.
type SessionObserver func(Identity)

// Provider is the authentication boundary consumed by the workflow and the
// API layer.
type Provider interface {
	Register(ctx context.Context, email, password, displayName string) (Identity, error)
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	// LookupByEmail resolves an email to a stable identity without
	// authenticating. The write paths use it to pin a receiver id onto
	// notifications at creation time; ErrUnknownUser means the email
	// addresses nobody.
	LookupByEmail(ctx context.Context, email string) (Identity, error)
	// UpdateProfile changes the display name on an existing identity.
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (Identity, error)
	// ChangePassword replaces the password for an existing identity.
	ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error
	// Observe registers a session-change observer and returns its cancel func.
	Observe(fn SessionObserver) (cancel func())
	// EndSession signs the identity out and notifies observers.
	EndSession(ctx context.Context, userID uuid.UUID) error
}
