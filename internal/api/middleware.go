/**
 * @description
 * This file contains the session middleware for the HTTP router. The API layer
 * issues its own HS256 session tokens at login; the middleware validates the
 * token and places the acting identity on the request context so handlers can
 * pass it explicitly into the workflow.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: token signing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Panic-Devs/P2P-Loan-Framework/internal/identity"
)

// ActorContextKey is a custom type for the context key to avoid collisions.
type ActorContextKey string

const actorKey ActorContextKey = "actor"

// NewSessionToken issues a signed session token for an authenticated identity.
func NewSessionToken(secret []byte, id identity.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   id.ID.String(),
		"email": id.Email,
		"name":  id.DisplayName,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// SessionAuthMiddleware validates the bearer token and attaches the acting
// identity to the request context.
func SessionAuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromClaims(claims jwt.MapClaims) (identity.Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return identity.Identity{}, fmt.Errorf("sub claim missing")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("sub claim is not a user id: %w", err)
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return identity.Identity{}, fmt.Errorf("email claim missing")
	}
	name, _ := claims["name"].(string)
	return identity.Identity{ID: id, Email: email, DisplayName: name}, nil
}

// ActorFromContext retrieves the acting identity from the request context.
// Handlers use this to pass the actor explicitly into every workflow call.
func ActorFromContext(ctx context.Context) (identity.Identity, bool) {
	actor, ok := ctx.Value(actorKey).(identity.Identity)
	return actor, ok
}
