// internal/membership/actor.go
package membership

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

const (
	ActorUserHeader = "X-Actor-User"
	ActorRoleHeader = "X-Actor-Role"
	ActorIDHeader   = "X-Actor-ID"
)

type actorKey struct{}

// WithActor stores the calling identity in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the identity stored in ctx and whether one was set.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ActorMiddleware trusts the identity headers set by the presentation layer
// in front of the API. Requests without a valid role carry no actor.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(ActorRoleHeader))))
		if role.Valid() {
			a := Actor{
				Username: strings.TrimSpace(r.Header.Get(ActorUserHeader)),
				Role:     role,
			}
			a.UserID, _ = strconv.ParseInt(r.Header.Get(ActorIDHeader), 10, 64)
			r = r.WithContext(WithActor(r.Context(), a))
		}
		next.ServeHTTP(w, r)
	})
}
