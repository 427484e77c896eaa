package middleware

import (
	"context"

	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated caller placed by Auth.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

// WithActor injects the caller into the context. Tests use it to skip
// token minting.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

// RequireActor is ActorFromContext for handlers mounted behind Auth; a
// missing actor is reported as unauthorized.
func RequireActor(ctx context.Context) (auth.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
