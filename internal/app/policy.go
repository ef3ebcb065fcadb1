package app

import (
	"context"
	"time"

	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// Policy holds the configurable auction and settlement rules
type Policy struct {
	PaymentDeadline   time.Duration
	MaxFailedAttempts int
	AutoReopen        bool
	ReopenDelay       time.Duration
	ReopenDuration    time.Duration
}

// DefaultPolicy returns the documented defaults
func DefaultPolicy() Policy {
	return Policy{
		PaymentDeadline:   90 * 24 * time.Hour,
		MaxFailedAttempts: 3,
		ReopenDelay:       time.Hour,
		ReopenDuration:    72 * time.Hour,
	}
}

func isPrivilegedActor(actor shared.Actor) bool {
	switch actor.Role {
	case shared.RoleAdmin, shared.RoleSystem:
		return true
	default:
		return false
	}
}

// authorizeLotCommand allows the lot owner and privileged actors
func authorizeLotCommand(ctx context.Context, l *lot.Lot) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok || actor.IsZero() {
		return shared.ErrPermissionDenied
	}
	if isPrivilegedActor(actor) {
		return nil
	}
	if l.OwnerID != nil && *l.OwnerID == actor.ID {
		return nil
	}
	return shared.ErrPermissionDenied
}

// authorizeSignal allows only financial processing (system) and admins
func authorizeSignal(ctx context.Context) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok || !isPrivilegedActor(actor) {
		return shared.ErrPermissionDenied
	}
	return nil
}

// authorizeBidder allows users to bid only for themselves
func authorizeBidder(ctx context.Context, userID uuid.UUID) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok || actor.IsZero() {
		return shared.ErrPermissionDenied
	}
	if isPrivilegedActor(actor) || actor.ID == userID {
		return nil
	}
	return shared.ErrPermissionDenied
}
