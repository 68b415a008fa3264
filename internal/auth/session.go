package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lawdesk.org/internal/codec"
	"lawdesk.org/internal/obs"
)

// Persistence keys written by SessionManager.
const (
	KeyAuthenticated  = "is_authenticated"
	KeyCurrentAccount = "current_account"
)

// LoginPath is where logout and failed guards send the user.
const LoginPath = "/login"

// State of a SessionManager.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Navigation tells the caller where to send the user next.
type Navigation struct {
	To string `json:"to"`
}

// RegistrationResult describes a completed self-registration.
type RegistrationResult struct {
	Account       Account `json:"account"`
	NeedsApproval bool    `json:"needs_approval"`
}

// SessionManager owns the session of one client context. Login, register,
// restore and logout are mutually exclusive: a second call while one is in
// flight fails with ErrOperationPending instead of queueing.
type SessionManager struct {
	registered AccountRepository
	directory  AccountRepository
	store      KV
	settings

	mu      sync.Mutex
	state   State
	session *Session
	pending bool
}

// NewSessionManager wires a manager. registered is the self-registration
// store used for login; directory is the administrator-provisioned list
// consulted for role eligibility; store keeps the restorable session.
func NewSessionManager(registered, directory AccountRepository, store KV, opts ...Option) (*SessionManager, error) {
	switch {
	case registered == nil:
		return nil, errors.New("registration store is required")
	case directory == nil:
		return nil, errors.New("account directory is required")
	case store == nil:
		return nil, errors.New("session store is required")
	}
	return &SessionManager{
		registered: registered,
		directory:  directory,
		store:      store,
		settings:   newSettings(opts),
	}, nil
}

func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the authenticated account, or nil.
func (m *SessionManager) Current() *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	a := cloneAccount(m.session.Account)
	return &a
}

func (m *SessionManager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	s := *m.session
	s.Account = cloneAccount(s.Account)
	return s, true
}

// Snapshot returns the state and the session under one lock, so the two
// always agree.
func (m *SessionManager) Snapshot() (State, Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return m.state, Session{}, false
	}
	s := *m.session
	s.Account = cloneAccount(s.Account)
	return m.state, s, true
}

func (m *SessionManager) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// begin marks an operation in flight. An existing session stays visible as
// authenticated until finish replaces it.
func (m *SessionManager) begin(next State, setState bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		return ErrOperationPending
	}
	m.pending = true
	if setState && m.session == nil {
		m.state = next
	}
	return nil
}

func (m *SessionManager) finish(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	m.session = s
	if s != nil {
		m.state = StateAuthenticated
	} else {
		m.state = StateAnonymous
	}
}

func (m *SessionManager) release() {
	m.mu.Lock()
	m.pending = false
	m.mu.Unlock()
}

// Register creates an unverified self-registered account.
func (m *SessionManager) Register(ctx context.Context, email, credential string, requested RoleTag) (RegistrationResult, error) {
	if err := m.begin(0, false); err != nil {
		return RegistrationResult{}, err
	}
	defer m.release()

	res, err := m.register(ctx, email, credential, requested)
	label := string(requested)
	if !requested.Builtin() {
		label = "invalid"
	}
	obs.ObserveRegistration(label, outcomeLabel(err))
	return res, err
}

func (m *SessionManager) register(ctx context.Context, email, credential string, requested RoleTag) (RegistrationResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return RegistrationResult{}, err
	}
	if credential == "" {
		return RegistrationResult{}, fmt.Errorf("%w: credential is required", ErrValidation)
	}
	role, err := ParseRoleTag(string(requested))
	if err != nil {
		return RegistrationResult{}, err
	}
	if role == RolePendingAdmin {
		return RegistrationResult{}, fmt.Errorf("%w: %s cannot be requested", ErrValidation, role)
	}

	if _, err := m.registered.FindAccountByEmail(ctx, email); err == nil {
		return RegistrationResult{}, ErrDuplicateAccount
	} else if !errors.Is(err, ErrNotFound) {
		return RegistrationResult{}, err
	}
	if role.RequiresProvisioning() {
		if _, err := m.directory.FindAccountByEmail(ctx, email); errors.Is(err, ErrNotFound) {
			return RegistrationResult{}, fmt.Errorf("%w: %s", ErrUnauthorizedRole, role)
		} else if err != nil {
			return RegistrationResult{}, err
		}
	}

	stored := role
	needsApproval := role.RequiresApproval()
	if needsApproval {
		stored = RolePendingAdmin
	}
	hash, err := HashCredential(credential)
	if err != nil {
		return RegistrationResult{}, err
	}
	created, err := m.registered.CreateAccount(ctx, Account{
		ID:             m.newID(),
		Email:          email,
		CredentialHash: hash,
		Role:           stored,
		Status:         StatusActive,
		CreatedAt:      m.now().UTC(),
	})
	if err != nil {
		return RegistrationResult{}, err
	}

	if needsApproval && m.approvals != nil {
		m.approvals.Request(ctx, created, role)
	}
	m.dispatchChallenge(ctx, created, role)
	m.record(ctx, "account.register", fmt.Sprintf("%s registered as %s", created.Email, created.Role))

	created.CredentialHash = ""
	return RegistrationResult{Account: created, NeedsApproval: needsApproval}, nil
}

func (m *SessionManager) dispatchChallenge(ctx context.Context, account Account, requested RoleTag) {
	if m.dispatcher == nil {
		return
	}
	challenge := Challenge{AccountID: account.ID, Email: account.Email, Role: requested}
	if m.verifier != nil {
		token, err := m.verifier.Issue(account, requested)
		if err != nil {
			obs.Warn("verification token issue failed", map[string]any{"account_id": account.ID, "error": err})
			return
		}
		challenge.Token = token
	}
	if err := m.dispatcher.SendVerification(ctx, challenge); err != nil {
		obs.Warn("verification dispatch failed", map[string]any{"account_id": account.ID, "error": err})
	}
}

// Login authenticates against the self-registration store. Any failure
// leaves the manager anonymous and clears persisted markers.
func (m *SessionManager) Login(ctx context.Context, email, credential string) (Session, error) {
	if err := m.begin(StateAuthenticating, true); err != nil {
		return Session{}, err
	}
	sess, err := m.authenticate(ctx, email, credential)
	obs.ObserveLogin(outcomeLabel(err))
	if err != nil {
		m.finish(nil)
		if cerr := m.clearPersisted(ctx); cerr != nil {
			obs.Warn("clear session markers failed", map[string]any{"error": cerr})
		}
		return Session{}, err
	}
	m.finish(&sess)
	return sess, nil
}

func (m *SessionManager) authenticate(ctx context.Context, email, credential string) (Session, error) {
	account, err := m.registered.FindAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !CompareCredential(account.CredentialHash, credential) || !account.Active() {
		return Session{}, ErrInvalidCredentials
	}
	if !account.Verified {
		return Session{}, ErrUnverifiedAccount
	}

	now := m.now().UTC()
	account.LastActiveAt = now
	if updated, err := m.registered.UpdateAccount(ctx, account); err != nil {
		obs.Warn("last activity update failed", map[string]any{"account_id": account.ID, "error": err})
	} else {
		account = updated
	}
	account.CredentialHash = ""

	sess := Session{Account: account, AuthenticatedAt: now}
	if err := m.persist(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Restore rehydrates the session from the store without checking
// credentials. Absent or malformed values mean no session. With
// WithRestoreRevalidation the account is re-read first.
func (m *SessionManager) Restore(ctx context.Context) (Session, bool, error) {
	if err := m.begin(0, false); err != nil {
		return Session{}, false, err
	}
	sess, ok, err := m.restore(ctx)
	if err != nil || !ok {
		m.finish(nil)
		return Session{}, false, err
	}
	m.finish(&sess)
	return sess, true, nil
}

func (m *SessionManager) restore(ctx context.Context) (Session, bool, error) {
	flag, ok, err := m.store.Get(ctx, KeyAuthenticated)
	if err != nil {
		return Session{}, false, fmt.Errorf("read session flag: %w", err)
	}
	if !ok || flag != "true" {
		return Session{}, false, nil
	}
	raw, ok, err := m.store.Get(ctx, KeyCurrentAccount)
	if err != nil {
		return Session{}, false, fmt.Errorf("read session snapshot: %w", err)
	}
	var snap sessionSnapshot
	if ok {
		if derr := codec.Decode(raw, &snap); derr != nil {
			obs.Warn("session snapshot unreadable", map[string]any{"error": derr})
			ok = false
		}
	}
	if !ok || snap.Account.ID == "" {
		return Session{}, false, m.clearPersisted(ctx)
	}
	sess := snap.session()

	if m.revalidate {
		current, err := m.registered.GetAccount(ctx, sess.Account.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			return Session{}, false, m.clearPersisted(ctx)
		case err != nil:
			return Session{}, false, err
		case !current.Active() || !current.Verified:
			return Session{}, false, m.clearPersisted(ctx)
		}
		current.CredentialHash = ""
		sess.Account = current
	}
	return sess, true, nil
}

// Logout clears the session and its persisted markers. The in-memory state
// is anonymous even if clearing the store fails.
func (m *SessionManager) Logout(ctx context.Context) (Navigation, error) {
	if err := m.begin(0, false); err != nil {
		return Navigation{}, err
	}
	m.finish(nil)
	return Navigation{To: LoginPath}, m.clearPersisted(ctx)
}

func (m *SessionManager) persist(ctx context.Context, s Session) error {
	raw, err := codec.Encode(snapshotOf(s))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, KeyCurrentAccount, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := m.store.Set(ctx, KeyAuthenticated, "true"); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (m *SessionManager) clearPersisted(ctx context.Context) error {
	return errors.Join(
		m.store.Remove(ctx, KeyAuthenticated),
		m.store.Remove(ctx, KeyCurrentAccount),
	)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnverifiedAccount):
		return "unverified"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrUnauthorizedRole):
		return "unauthorized_role"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
