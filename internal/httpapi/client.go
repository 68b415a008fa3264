package httpapi

import (
	"context"
	"errors"
	"net/http"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/guard"
	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/obs"
)

// ClientCookie names the client context. Each value owns one SessionManager
// and its persisted session markers.
const ClientCookie = "lawdesk_client"

type clientKey struct{}

// withClient makes sure every request carries a client id, issuing a cookie
// on first contact.
func (a *API) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(ClientCookie); err == nil && ids.ValidOpaque(c.Value) {
			id = c.Value
		} else {
			id = ids.Opaque()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   a.cookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, id)))
	})
}

func clientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientKey{}).(string)
	return id
}

// manager returns the SessionManager of the request's client. A failed
// restore leaves the manager anonymous and is only logged.
func (a *API) manager(r *http.Request) (*auth.SessionManager, error) {
	id := clientFromContext(r.Context())
	if id == "" {
		return nil, errors.New("request has no client context")
	}
	m, err := a.svc.Sessions.Get(r.Context(), id)
	if m == nil {
		return nil, err
	}
	if err != nil {
		obs.Warn("session restore failed", map[string]any{"error": err, "path": r.URL.Path})
	}
	return m, nil
}

func (a *API) sessionSource(r *http.Request) (guard.Source, error) {
	m, err := a.manager(r)
	if err != nil {
		return nil, err
	}
	return m, nil
}
