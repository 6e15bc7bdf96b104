package sentinel

import (
	"context"
	"errors"
)

var userCtxKey = &contextKey{"user"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithActor records who is performing lifecycle operations. Events published
// while handling ctx carry this actor.
func WithActor(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the actor set with WithActor, falling back to the
// user set with WithContext.
func ActorFromContext(ctx context.Context) (ActorRef, bool) {
	if actor, ok := ctx.Value(actorCtxKey).(ActorRef); ok {
		return actor, true
	}
	if user, ok := FromContext(ctx); ok && user != nil {
		return ActorRef{ID: user.ID.String(), Type: "user"}, true
	}
	return ActorRef{}, false
}

// Can reports whether the user in ctx has permission through its groups.
func Can(ctx context.Context, permission string) bool {
	user, ok := FromContext(ctx)
	if !ok || user == nil {
		return false
	}
	return user.HasAccess(permission)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
