package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/notify"
	"lawdesk.org/internal/store/kv"
)

const testPassword = "s3cret-pass"

type captureDispatcher struct {
	mu         sync.Mutex
	challenges []auth.Challenge
}

func (d *captureDispatcher) SendVerification(_ context.Context, c auth.Challenge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.challenges = append(d.challenges, c)
	return nil
}

func (d *captureDispatcher) tokenFor(t *testing.T, email string) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.challenges) - 1; i >= 0; i-- {
		if d.challenges[i].Email == email {
			return d.challenges[i].Token
		}
	}
	t.Fatalf("no challenge for %s", email)
	return ""
}

type testEnv struct {
	t          *testing.T
	srv        *httptest.Server
	accounts   *auth.AccountService
	roles      *auth.RoleService
	dispatcher *captureDispatcher
	ring       *audit.Ring
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog := auth.BuiltinCatalog()
	ring := audit.NewRing(64)
	withAudit := auth.WithAuditSink(ring)

	directory := auth.NewMemoryAccountRepository()
	store := kv.NewMemory()
	registered := auth.NewKVAccountRepository(store)
	roleRepo := auth.NewMemoryRoleRepository()

	roles, err := auth.NewRoleService(roleRepo, catalog, withAudit)
	if err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	accounts, err := auth.NewAccountService(directory, registered, roleRepo, catalog, withAudit)
	if err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}
	verifier, err := auth.NewVerifier([]byte("test-secret"), "lawdesk-test")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	verification, err := auth.NewVerificationService(verifier, registered, withAudit)
	if err != nil {
		t.Fatalf("NewVerificationService: %v", err)
	}
	approvals, err := auth.NewApprovalWorkflow(notify.Log{}, "admin@firm.test", accounts, withAudit)
	if err != nil {
		t.Fatalf("NewApprovalWorkflow: %v", err)
	}
	dispatcher := &captureDispatcher{}
	sessions, err := auth.NewClientSessions(func(clientID string) (*auth.SessionManager, error) {
		return auth.NewSessionManager(registered, directory, kv.ClientScope(store, clientID),
			withAudit,
			auth.WithVerification(verifier, dispatcher),
			auth.WithApprovalWorkflow(approvals),
		)
	})
	if err != nil {
		t.Fatalf("NewClientSessions: %v", err)
	}

	api, err := New(ReadyProbe{}, "test", Services{
		Sessions:     sessions,
		Roles:        roles,
		Accounts:     accounts,
		Verification: verification,
		Approvals:    approvals,
		Audit:        ring,
	}, WithRateLimit(1000, 1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{t: t, srv: srv, accounts: accounts, roles: roles, dispatcher: dispatcher, ring: ring}
}

// browser is one client context: its own cookie jar, so its own session.
type browser struct {
	env    *testEnv
	client *http.Client
}

func (e *testEnv) browser() *browser {
	e.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatalf("cookiejar: %v", err)
	}
	c := &http.Client{Transport: e.srv.Client().Transport, Jar: jar}
	return &browser{env: e, client: c}
}

func (b *browser) do(method, path string, body any) (int, map[string]any) {
	t := b.env.t
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, b.env.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func (b *browser) login(email, password string) (int, map[string]any) {
	return b.do(http.MethodPost, "/v1/auth/login", map[string]any{"email": email, "password": password})
}

// member self-registers email, confirms the emailed challenge and grants the
// given overrides, leaving an account that can log in.
func (e *testEnv) member(email string, role auth.RoleTag, permissions ...string) auth.Account {
	e.t.Helper()
	code, body := e.browser().do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": email, "password": testPassword, "role": string(role),
	})
	if code != http.StatusCreated {
		e.t.Fatalf("register %s: %d %v", email, code, body)
	}
	id := body["account"].(map[string]any)["id"].(string)
	token := e.dispatcher.tokenFor(e.t, email)
	if code, body = e.browser().do(http.MethodPost, "/v1/auth/verify", map[string]any{"token": token}); code != http.StatusOK {
		e.t.Fatalf("verify %s: %d %v", email, code, body)
	}
	return e.grant(id, permissions...)
}

func (e *testEnv) grant(id string, permissions ...string) auth.Account {
	e.t.Helper()
	ctx := context.Background()
	if len(permissions) > 0 {
		if _, err := e.accounts.SetPermissions(ctx, id, permissions); err != nil {
			e.t.Fatalf("set permissions: %v", err)
		}
	}
	a, err := e.accounts.Get(ctx, id)
	if err != nil {
		e.t.Fatalf("get account: %v", err)
	}
	return a
}

func (e *testEnv) adminBrowser(permissions ...string) *browser {
	e.t.Helper()
	a, _, err := e.accounts.Bootstrap(context.Background(), "boss@firm.test", testPassword)
	if err != nil {
		e.t.Fatalf("bootstrap admin: %v", err)
	}
	e.grant(a.ID, permissions...)
	b := e.browser()
	if code, body := b.login("boss@firm.test", testPassword); code != http.StatusOK {
		e.t.Fatalf("admin login: %d %v", code, body)
	}
	return b
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.browser().do(http.MethodGet, "/healthz", nil)
	if code != http.StatusOK || body["status"] != "ok" || body["service"] != serviceName {
		t.Fatalf("unexpected healthz: %d %v", code, body)
	}
}

func TestRegisterVerifyLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	code, body := b.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": "Clerk@Firm.test", "password": testPassword, "role": "staff",
	})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, body)
	}
	if body["needs_approval"] != false {
		t.Fatalf("staff must not need approval: %v", body)
	}

	code, body = b.login("clerk@firm.test", testPassword)
	if code != http.StatusForbidden || body["error"] != "unverified_account" {
		t.Fatalf("expected unverified_account, got %d %v", code, body)
	}

	token := env.dispatcher.tokenFor(t, "clerk@firm.test")
	if code, body = b.do(http.MethodPost, "/v1/auth/verify", map[string]any{"token": token}); code != http.StatusOK {
		t.Fatalf("verify: %d %v", code, body)
	}

	code, body = b.login("clerk@firm.test", testPassword)
	if code != http.StatusOK || body["authenticated"] != true {
		t.Fatalf("login: %d %v", code, body)
	}

	code, body = b.do(http.MethodGet, "/v1/auth/session", nil)
	if code != http.StatusOK || body["authenticated"] != true {
		t.Fatalf("session: %d %v", code, body)
	}
	account := body["account"].(map[string]any)
	if account["email"] != "clerk@firm.test" || account["role"] != "staff" {
		t.Fatalf("unexpected account: %v", account)
	}
	if _, leaked := account["credential_hash"]; leaked {
		t.Fatalf("credential hash must not be serialized")
	}

	other := env.browser()
	if _, body = other.do(http.MethodGet, "/v1/auth/session", nil); body["authenticated"] != false {
		t.Fatalf("another client must not share the session: %v", body)
	}

	code, body = b.do(http.MethodPost, "/v1/auth/logout", nil)
	if code != http.StatusOK || body["redirect"] != auth.LoginPath {
		t.Fatalf("logout: %d %v", code, body)
	}
	if _, body = b.do(http.MethodGet, "/v1/auth/session", nil); body["authenticated"] != false {
		t.Fatalf("expected anonymous after logout: %v", body)
	}
}

func TestRegisterErrorsAreDistinct(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	code, body := b.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": "lawyer@firm.test", "password": testPassword, "role": "attorney",
	})
	if code != http.StatusForbidden || body["error"] != "unauthorized_role" {
		t.Fatalf("expected unauthorized_role, got %d %v", code, body)
	}

	req := map[string]any{"email": "dup@firm.test", "password": testPassword, "role": "staff"}
	if code, body = b.do(http.MethodPost, "/v1/auth/register", req); code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, body)
	}
	code, body = b.do(http.MethodPost, "/v1/auth/register", req)
	if code != http.StatusConflict || body["error"] != "duplicate_account" {
		t.Fatalf("expected duplicate_account, got %d %v", code, body)
	}
	notice, ok := body["notice"].(map[string]any)
	if !ok || notice["variant"] != string(auth.NoticeDestructive) {
		t.Fatalf("expected destructive notice, got %v", body["notice"])
	}

	code, body = b.login("nobody@firm.test", "whatever")
	if code != http.StatusUnauthorized || body["error"] != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %v", code, body)
	}

	code, body = b.do(http.MethodPost, "/v1/auth/register", map[string]any{"email": "x@firm.test", "extra": true})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d %v", code, body)
	}
}

func TestAdminRoutesGuarded(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.browser().do(http.MethodGet, "/v1/roles", nil)
	if code != http.StatusUnauthorized || body["redirect"] != "/login?return_to=%2Fv1%2Froles" {
		t.Fatalf("anonymous: %d %v", code, body)
	}

	env.member("desk@firm.test", auth.RoleStaff)
	staff := env.browser()
	if code, body = staff.login("desk@firm.test", testPassword); code != http.StatusOK {
		t.Fatalf("staff login: %d %v", code, body)
	}
	code, body = staff.do(http.MethodGet, "/v1/roles", nil)
	if code != http.StatusForbidden || body["redirect"] != "/dashboard" {
		t.Fatalf("staff: %d %v", code, body)
	}

	admin := env.adminBrowser()
	if code, body = admin.do(http.MethodGet, "/v1/roles", nil); code != http.StatusOK {
		t.Fatalf("admin: %d %v", code, body)
	}
}

func TestRoleAndAccountManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminBrowser()

	code, role := admin.do(http.MethodPost, "/v1/roles", map[string]any{
		"name": "Intake", "description": "Front desk intake", "permissions": []string{"view:clients", "create:clients"},
	})
	if code != http.StatusCreated {
		t.Fatalf("create role: %d %v", code, role)
	}
	roleID := role["id"].(string)

	code, body := admin.do(http.MethodPost, "/v1/roles", map[string]any{"name": "Bogus", "permissions": []string{"fly:rockets"}})
	if code != http.StatusBadRequest || body["error"] != "validation_failed" {
		t.Fatalf("expected validation_failed, got %d %v", code, body)
	}

	code, acct := admin.do(http.MethodPost, "/v1/accounts", map[string]any{
		"email": "para@firm.test", "name": "Pat", "password": testPassword, "role": "paralegal", "verified": true,
	})
	if code != http.StatusCreated {
		t.Fatalf("create account: %d %v", code, acct)
	}
	acctID := acct["id"].(string)

	code, acct = admin.do(http.MethodPost, "/v1/accounts/"+acctID+"/apply-role", map[string]any{"role_id": roleID})
	if code != http.StatusOK {
		t.Fatalf("apply role: %d %v", code, acct)
	}
	perms := acct["permissions"].([]any)
	if len(perms) != 2 {
		t.Fatalf("expected role permissions copied, got %v", perms)
	}

	// Editing the role later does not touch the account.
	code, _ = admin.do(http.MethodPatch, "/v1/roles/"+roleID, map[string]any{"permissions": []string{"view:clients"}})
	if code != http.StatusOK {
		t.Fatalf("patch role: %d", code)
	}
	if _, acct = admin.do(http.MethodGet, "/v1/accounts/"+acctID, nil); len(acct["permissions"].([]any)) != 2 {
		t.Fatalf("role change must not propagate: %v", acct["permissions"])
	}

	code, acct = admin.do(http.MethodPut, "/v1/accounts/"+acctID+"/permissions", map[string]any{"permissions": []string{"view:cases"}})
	if code != http.StatusOK || len(acct["permissions"].([]any)) != 1 {
		t.Fatalf("set permissions: %d %v", code, acct)
	}

	code, acct = admin.do(http.MethodPatch, "/v1/accounts/"+acctID, map[string]any{"status": "inactive"})
	if code != http.StatusOK || acct["status"] != "inactive" {
		t.Fatalf("deactivate: %d %v", code, acct)
	}
	code, body = admin.do(http.MethodPatch, "/v1/accounts/"+acctID, map[string]any{"status": "frozen"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d %v", code, body)
	}

	if code, _ = admin.do(http.MethodDelete, "/v1/accounts/"+acctID, nil); code != http.StatusNoContent {
		t.Fatalf("delete account: %d", code)
	}
	if code, _ = admin.do(http.MethodGet, "/v1/accounts/"+acctID, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
	if code, _ = admin.do(http.MethodDelete, "/v1/roles/"+roleID, nil); code != http.StatusNoContent {
		t.Fatalf("delete role: %d", code)
	}
	if code, _ = admin.do(http.MethodPost, "/v1/roles/"+roleID, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestAdminApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	applicant := env.browser()

	code, body := applicant.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": "partner@firm.test", "password": testPassword, "role": "admin",
	})
	if code != http.StatusCreated || body["needs_approval"] != true {
		t.Fatalf("register admin: %d %v", code, body)
	}
	account := body["account"].(map[string]any)
	if account["role"] != string(auth.RolePendingAdmin) {
		t.Fatalf("expected pending_admin, got %v", account["role"])
	}
	id := account["id"].(string)

	admin := env.adminBrowser()
	_, body = admin.do(http.MethodGet, "/v1/approvals", nil)
	pending := body["accounts"].([]any)
	if len(pending) != 1 || pending[0].(map[string]any)["id"] != id {
		t.Fatalf("unexpected pending list: %v", pending)
	}

	code, body = admin.do(http.MethodPost, "/v1/accounts/"+id+"/approve", nil)
	if code != http.StatusOK || body["role"] != string(auth.RoleAdmin) {
		t.Fatalf("approve: %d %v", code, body)
	}
	code, body = admin.do(http.MethodPost, "/v1/accounts/"+id+"/approve", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("second approve should fail validation, got %d %v", code, body)
	}
}

func TestPermissionsCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.member("desk@firm.test", auth.RoleStaff)
	b := env.browser()
	if code, body := b.login("desk@firm.test", testPassword); code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}

	_, body := b.do(http.MethodGet, "/v1/permissions?module=billing", nil)
	perms := body["permissions"].([]any)
	if len(perms) != 4 {
		t.Fatalf("expected 4 billing permissions, got %d", len(perms))
	}
	_, body = b.do(http.MethodGet, "/v1/permissions?module=nope", nil)
	if got := body["permissions"].([]any); len(got) != 0 {
		t.Fatalf("unknown module should list nothing, got %v", got)
	}
	_, body = b.do(http.MethodGet, "/v1/permissions/modules", nil)
	if len(body["modules"].([]any)) == 0 {
		t.Fatalf("expected modules")
	}
}

func TestAuditRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminBrowser()
	code, body := admin.do(http.MethodGet, "/v1/audit", nil)
	if code != http.StatusForbidden {
		t.Fatalf("admin role alone must not grant view:audit, got %d %v", code, body)
	}

	env.member("auditor@firm.test", auth.RoleStaff, "view:audit")
	auditor := env.browser()
	if code, body = auditor.login("auditor@firm.test", testPassword); code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}
	code, body = auditor.do(http.MethodGet, "/v1/audit?limit=5", nil)
	if code != http.StatusOK {
		t.Fatalf("audit: %d %v", code, body)
	}
	entries := body["entries"].([]any)
	if len(entries) == 0 || len(entries) > 5 {
		t.Fatalf("unexpected entries: %v", entries)
	}
	if code, _ = auditor.do(http.MethodGet, "/v1/audit?limit=9999", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", code)
	}
}

func TestClientCookieIssuedOnce(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == ClientCookie {
			found = c
		}
	}
	if found == nil || !found.HttpOnly {
		t.Fatalf("expected HttpOnly %s cookie, got %v", ClientCookie, resp.Cookies())
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	req.AddCookie(found)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == ClientCookie {
			t.Fatalf("cookie should not be reissued")
		}
	}
}

func TestHandleAuthErrorStatuses(t *testing.T) {
	cases := map[error]int{
		auth.ErrDuplicateAccount:   http.StatusConflict,
		auth.ErrUnauthorizedRole:   http.StatusForbidden,
		auth.ErrInvalidCredentials: http.StatusUnauthorized,
		auth.ErrUnverifiedAccount:  http.StatusForbidden,
		auth.ErrNotFound:           http.StatusNotFound,
		auth.ErrValidation:         http.StatusBadRequest,
		auth.ErrOperationPending:   http.StatusConflict,
		auth.ErrInvalidToken:       http.StatusBadRequest,
		context.Canceled:           http.StatusInternalServerError,
	}
	for err, want := range cases {
		rr := httptest.NewRecorder()
		handleAuthError(rr, httptest.NewRequest(http.MethodGet, "/", nil), err)
		if rr.Code != want {
			t.Fatalf("%v: expected %d, got %d", err, want, rr.Code)
		}
	}
}
