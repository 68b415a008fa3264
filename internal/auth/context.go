package auth

import "context"

type actorContextKey struct{}
type sessionContextKey struct{}

// ContextWithActor records who performs management operations; the id ends
// up in audit entries.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext returns the actor id, or "system" when none was attached.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if v, ok := ctx.Value(actorContextKey{}).(string); ok && v != "" {
		return v
	}
	return SystemActor
}

// SystemActor is recorded for mutations without an authenticated actor
// (self-registration, seeding).
const SystemActor = "system"

// ContextWithSession attaches the caller's session.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &s)
}

// SessionFromContext extracts the session attached by ContextWithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}
