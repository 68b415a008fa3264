package httpapi

import (
	"net/http"
	"strings"

	"lawdesk.org/internal/auth"
)

const permViewAudit = "view:audit"

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
}

type createAccountRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

type updateAccountRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Verified *bool   `json:"verified"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type applyRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	module := strings.TrimSpace(r.URL.Query().Get("module"))
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": a.svc.Roles.Catalog().ListPermissions(module),
	})
}

func (a *API) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modules": a.svc.Roles.Catalog().ListModules(),
	})
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, _ := auth.SessionFromContext(r.Context())
	if !auth.HasPermission(&s.Account, permViewAudit) {
		notice := auth.AccessDeniedNotice()
		writeError(w, r, http.StatusForbidden, "forbidden", "missing permission "+permViewAudit, &notice)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	entries := []auth.AuditEntry{}
	if a.svc.Audit != nil {
		got, err := a.svc.Audit.Recent(r.Context(), limit)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if got != nil {
			entries = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.svc.Roles.List(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": nonNil(roles)})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		role, err := a.svc.Roles.Create(r.Context(), req.Name, req.Description, req.Permissions)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResource(r.URL.Path, "/v1/roles/")
	if id == "" || rest != "" {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		role, err := a.svc.Roles.Get(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		var req updateRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		role, err := a.svc.Roles.Update(r.Context(), id, auth.RolePatch{
			Name:        req.Name,
			Description: req.Description,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if err := a.svc.Roles.Delete(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := a.svc.Accounts.List(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": nonNil(accounts)})
	case http.MethodPost:
		var req createAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		account, err := a.svc.Accounts.Create(r.Context(), auth.Profile{
			Email:      req.Email,
			Name:       req.Name,
			Credential: req.Password,
			Role:       auth.RoleTag(req.Role),
			Verified:   req.Verified,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	id, action := splitResource(r.URL.Path, "/v1/accounts/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	switch action {
	case "":
		a.accountItem(w, r, id)
	case "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req permissionsRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		a.respondAccount(w, r)(a.svc.Accounts.SetPermissions(r.Context(), id, req.Permissions))
	case "apply-role":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req applyRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		a.respondAccount(w, r)(a.svc.Accounts.ApplyRole(r.Context(), id, req.RoleID))
	case "approve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.respondAccount(w, r)(a.svc.Approvals.Approve(r.Context(), id))
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

func (a *API) accountItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		a.respondAccount(w, r)(a.svc.Accounts.Get(r.Context(), id))
	case http.MethodPatch:
		var req updateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		patch, err := req.patch()
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.respondAccount(w, r)(a.svc.Accounts.Update(r.Context(), id, patch))
	case http.MethodDelete:
		if err := a.svc.Accounts.Delete(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (req updateAccountRequest) patch() (auth.AccountPatch, error) {
	patch := auth.AccountPatch{
		Email:      req.Email,
		Name:       req.Name,
		Credential: req.Password,
		Verified:   req.Verified,
	}
	if req.Role != nil {
		role := auth.RoleTag(*req.Role)
		patch.Role = &role
	}
	if req.Status != nil {
		status, err := auth.ParseAccountStatus(*req.Status)
		if err != nil {
			return auth.AccountPatch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

func (a *API) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	pending, err := a.svc.Approvals.Pending(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": nonNil(pending)})
}

func (a *API) respondAccount(w http.ResponseWriter, r *http.Request) func(auth.Account, error) {
	return func(account auth.Account, err error) {
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// splitResource turns "/v1/accounts/{id}/{action}" into id and action.
func splitResource(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", ""
	}
	id, action, _ := strings.Cut(rest, "/")
	if strings.Contains(action, "/") {
		return "", ""
	}
	return id, action
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
