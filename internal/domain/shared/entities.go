package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role is the authorization role of a caller
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor represents the authenticated caller of an engine command
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// SystemActor is used for scheduler-driven transitions and financial signals
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil && a.Role == ""
}

type actorKey struct{}

// WithActor attaches the caller to ctx
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller attached to ctx, if any
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
