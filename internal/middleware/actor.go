package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/httputil"
	"github.com/google/uuid"
)

type ContextKey string

const ActorKey ContextKey = "actor"

// Set by the gateway in front of the service.
const (
	ActorRoleHeader = "X-Actor-Role"
	ActorIDHeader   = "X-Actor-ID"
)

// Actor puts the caller into the request context. A missing role header means
// an organizer; an unknown role is rejected. Referees identify themselves with
// ActorIDHeader.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := bracket.Organizer()
		if raw := r.Header.Get(ActorRoleHeader); raw != "" {
			role, err := bracket.ParseRole(raw)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			actor.Role = role
		}
		if raw := r.Header.Get(ActorIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httputil.Error(w, fmt.Errorf("%w: invalid %s %q", bracket.ErrValidation, ActorIDHeader, raw))
				return
			}
			actor.ID = id
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor bracket.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

func GetActorFromContext(ctx context.Context) (bracket.Actor, bool) {
	val := ctx.Value(ActorKey)
	if val == nil {
		return bracket.Actor{}, false
	}

	actor, ok := val.(bracket.Actor)
	return actor, ok
}
