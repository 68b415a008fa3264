package guard

import (
	"encoding/json"
	"net/http"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
)

// Resolver finds the session source of the client behind a request.
type Resolver func(r *http.Request) (Source, error)

// RequireSession wraps next with the plain guard. Denials answer 401 with the
// login redirect in the body.
func (g *Guard) RequireSession(resolve Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, ok := g.resolve(w, r, resolve)
		if !ok {
			return
		}
		g.serve(w, r, g.Plain(r.Context(), src, r.URL.RequestURI()), next)
	})
}

// RequireRole wraps next with the role guard. A missing session answers 401,
// a wrong role answers 403 with the landing redirect.
func (g *Guard) RequireRole(resolve Resolver, next http.Handler, roles ...auth.RoleTag) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, ok := g.resolve(w, r, resolve)
		if !ok {
			return
		}
		g.serve(w, r, g.Role(r.Context(), src, r.URL.RequestURI(), roles...), next)
	})
}

func (g *Guard) resolve(w http.ResponseWriter, r *http.Request, resolve Resolver) (Source, bool) {
	src, err := resolve(r)
	if err != nil {
		obs.Error("session resolve failed", map[string]any{"error": err, "path": r.URL.Path})
		writeDenied(w, r, http.StatusInternalServerError, "session unavailable", "", nil)
		return nil, false
	}
	return src, true
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, d Decision, next http.Handler) {
	switch d.Outcome {
	case Allow:
		ctx := auth.ContextWithActor(r.Context(), d.Session.Account.ID)
		ctx = auth.ContextWithSession(ctx, *d.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	case RedirectLanding:
		writeDenied(w, r, http.StatusForbidden, "access denied", d.Location, d.Notice)
	default:
		writeDenied(w, r, http.StatusUnauthorized, "authentication required", d.Location, d.Notice)
	}
}

func writeDenied(w http.ResponseWriter, r *http.Request, code int, msg, redirect string, notice *auth.Notice) {
	payload := map[string]any{"error": msg}
	if redirect != "" {
		payload["redirect"] = redirect
	}
	if notice != nil {
		payload["notice"] = notice
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
