package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/catalogimport/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for event records.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already rewritten by TrustedRealIP
	ua := r.Header.Get("User-Agent")
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, ua)
	return ctx
}

// actorFrom returns the actor the Actor middleware attached.
func actorFrom(r *http.Request) (core.Actor, error) {
	a, ok := core.ActorFromContext(r.Context())
	if !ok || a.ID == "" {
		return core.Actor{}, errMissingActor
	}
	return a, nil
}
