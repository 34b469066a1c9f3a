package decorator

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// WithActor attaches the id of the member making the call. Cached reads use
// it to count a view at most once per member and window.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFrom returns the actor attached with WithActor.
func ActorFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorContextKey{}).(string)
	return actor, ok && actor != ""
}
