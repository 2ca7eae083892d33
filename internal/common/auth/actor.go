// Package auth verifies staff bearer tokens and carries the acting identity
// through request contexts.
package auth

import (
	"context"
	"errors"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Actor is the authenticated caller of a staff operation.
type Actor struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  string   `json:"role"`
	Roles []string `json:"roles,omitempty"`
}

// HasAnyRole reports whether the actor holds one of roles.
func (a *Actor) HasAnyRole(roles ...string) bool {
	if a == nil {
		return false
	}
	for _, want := range roles {
		if a.Role == want {
			return true
		}
		for _, r := range a.Roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

// TokenVerifier turns a raw bearer token into an Actor.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Actor, error)
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(*Actor)
	return a, ok && a != nil
}
