// Package httpapi exposes the auth services over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/guard"
	"lawdesk.org/internal/obs"
)

const serviceName = "lawdesk-auth"

// Pinger is implemented by KV backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the database and the session store when they are configured.
type ReadyProbe struct {
	DB *sql.DB
	KV Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var errs []error
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rp.KV != nil {
		if err := rp.KV.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Services are the domain services behind the routes. Audit may be nil.
type Services struct {
	Sessions     *auth.ClientSessions
	Roles        *auth.RoleService
	Accounts     *auth.AccountService
	Verification *auth.VerificationService
	Approvals    *auth.ApprovalWorkflow
	Audit        audit.Reader
	Guard        *guard.Guard
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        Services

	rateBurst    int
	ratePerSec   int
	maxBody      int64
	cookieSecure bool
}

type Option func(*API)

func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithSecureCookie marks the client cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(a *API) { a.cookieSecure = secure }
}

func New(rp ReadyProbe, version string, svc Services, opts ...Option) (*API, error) {
	switch {
	case svc.Sessions == nil:
		return nil, errors.New("client sessions are required")
	case svc.Roles == nil || svc.Accounts == nil:
		return nil, errors.New("role and account services are required")
	case svc.Verification == nil || svc.Approvals == nil:
		return nil, errors.New("verification and approval services are required")
	}
	if svc.Guard == nil {
		svc.Guard = guard.New()
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)

	// catalog, any signed-in user
	g := a.svc.Guard
	a.mux.Handle("/v1/permissions", g.RequireSession(a.sessionSource, http.HandlerFunc(a.handlePermissions)))
	a.mux.Handle("/v1/permissions/modules", g.RequireSession(a.sessionSource, http.HandlerFunc(a.handleModules)))
	a.mux.Handle("/v1/audit", g.RequireSession(a.sessionSource, http.HandlerFunc(a.handleAudit)))

	// administration
	admin := func(h http.HandlerFunc) http.Handler {
		return g.RequireRole(a.sessionSource, h, auth.RoleAdmin)
	}
	a.mux.Handle("/v1/roles", admin(a.handleRolesCollection))
	a.mux.Handle("/v1/roles/", admin(a.handleRoleResource))
	a.mux.Handle("/v1/accounts", admin(a.handleAccountsCollection))
	a.mux.Handle("/v1/accounts/", admin(a.handleAccountResource))
	a.mux.Handle("/v1/approvals", admin(a.handleApprovals))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withClient(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Warn("readiness check failed", map[string]any{"error": err})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"clients": a.svc.Sessions.Len(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string, notice *auth.Notice) {
	payload := map[string]any{
		"error":   errCode,
		"message": msg,
	}
	if notice != nil {
		payload["notice"] = notice
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError maps domain errors to a status and a notice that is safe
// to show to the user.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	notice := auth.NoticeFor(err)
	var (
		code    int
		errCode string
	)
	switch {
	case errors.Is(err, auth.ErrDuplicateAccount):
		code, errCode = http.StatusConflict, "duplicate_account"
	case errors.Is(err, auth.ErrUnauthorizedRole):
		code, errCode = http.StatusForbidden, "unauthorized_role"
	case errors.Is(err, auth.ErrInvalidCredentials):
		code, errCode = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrUnverifiedAccount):
		code, errCode = http.StatusForbidden, "unverified_account"
	case errors.Is(err, auth.ErrNotFound):
		code, errCode = http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrValidation):
		code, errCode = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, auth.ErrOperationPending):
		code, errCode = http.StatusConflict, "operation_pending"
	case errors.Is(err, auth.ErrInvalidToken):
		code, errCode = http.StatusBadRequest, "invalid_token"
	default:
		obs.Error("request failed", map[string]any{
			"error":      err,
			"path":       r.URL.Path,
			"request_id": audit.RequestIDFromContext(r.Context()),
		})
		code, errCode = http.StatusInternalServerError, "internal"
	}
	writeError(w, r, code, errCode, notice.Description, &notice)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	notice := auth.NoticeFor(auth.ErrValidation)
	writeError(w, r, http.StatusBadRequest, "bad_request", err.Error(), &notice)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}
