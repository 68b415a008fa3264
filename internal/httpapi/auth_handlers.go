package httpapi

import (
	"net/http"
	"strings"
	"time"

	"lawdesk.org/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Authenticated   bool          `json:"authenticated"`
	State           string        `json:"state"`
	Account         *auth.Account `json:"account,omitempty"`
	AuthenticatedAt *time.Time    `json:"authenticated_at,omitempty"`
	Notice          *auth.Notice  `json:"notice,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	m, err := a.manager(r)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	role := auth.RoleTag(strings.ToLower(strings.TrimSpace(req.Role)))
	res, err := m.Register(r.Context(), req.Email, req.Password, role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	notice := auth.Notice{
		Title:       "Registration received",
		Description: "Check your email for a verification link.",
		Variant:     auth.NoticeSuccess,
	}
	if res.NeedsApproval {
		notice.Description = "Check your email for a verification link. Administrator access needs approval before it is granted."
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account":        res.Account,
		"needs_approval": res.NeedsApproval,
		"notice":         notice,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	m, err := a.manager(r)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	s, err := m.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	notice := auth.Notice{Title: "Welcome back", Variant: auth.NoticeSuccess}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated:   true,
		State:           auth.StateAuthenticated.String(),
		Account:         &s.Account,
		AuthenticatedAt: &s.AuthenticatedAt,
		Notice:          &notice,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	m, err := a.manager(r)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	nav, err := m.Logout(r.Context())
	if err != nil {
		// Unless the logout was rejected as pending, the in-memory session is
		// already gone and only the persisted markers may have survived.
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redirect": nav.To})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	m, err := a.manager(r)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	state, s, ok := m.Snapshot()
	resp := sessionResponse{State: state.String()}
	if ok && state == auth.StateAuthenticated {
		resp.Authenticated = true
		resp.Account = &s.Account
		resp.AuthenticatedAt = &s.AuthenticatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	var token string
	switch r.Method {
	case http.MethodGet:
		token = r.URL.Query().Get("token")
	case http.MethodPost:
		var req verifyRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		token = req.Token
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	account, err := a.svc.Verification.Confirm(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"notice":  auth.Notice{Title: "Account verified", Description: "You can now log in.", Variant: auth.NoticeSuccess},
	})
}
