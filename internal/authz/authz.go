package authz

import (
	"context"
	"errors"

	"github.com/conferia/roombook/internal/booking"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Actor is the request-scoped identity passed explicitly into every
// engine call. Engines never consult ambient/global state.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

// CanManage reports whether the actor administers the room: the room's
// owner and global admins hold override rights for it.
func (a Actor) CanManage(room booking.Room) bool {
	return a.IsAdmin || (a.UserID != 0 && room.OwnerID == a.UserID)
}

type actorContextKey struct{}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the Actor stored in ctx. It returns nil if
// ctx is nil, if no actor is stored, or if the stored value has a
// different type.
func ActorFromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// RequireActor returns the actor in ctx or ErrUnauthenticated.
func RequireActor(ctx context.Context) (Actor, error) {
	actor := ActorFromContext(ctx)
	if actor == nil {
		return Actor{}, ErrUnauthenticated
	}
	return *actor, nil
}

// RequireAdmin returns ErrForbidden unless the context actor is an admin.
func RequireAdmin(ctx context.Context) error {
	actor := ActorFromContext(ctx)
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}
