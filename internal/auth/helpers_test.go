package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lawdesk.org/internal/store/kv"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (s *recordingSink) Record(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingDispatcher struct {
	mu         sync.Mutex
	challenges []Challenge
	err        error
}

func (d *recordingDispatcher) SendVerification(_ context.Context, c Challenge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.challenges = append(d.challenges, c)
	return nil
}

func (d *recordingDispatcher) last(t *testing.T) Challenge {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.challenges) == 0 {
		t.Fatal("no verification challenge dispatched")
	}
	return d.challenges[len(d.challenges)-1]
}

type recordingApprovals struct {
	mu       sync.Mutex
	requests []ApprovalRequest
	err      error
}

func (n *recordingApprovals) NotifyApproval(_ context.Context, r ApprovalRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.requests = append(n.requests, r)
	return nil
}

// failingKV wraps a store and fails selected operations.
type failingKV struct {
	KV
	failGet bool
	failSet bool
}

var errStoreDown = errors.New("store down")

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStoreDown
	}
	return f.KV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errStoreDown
	}
	return f.KV.Set(ctx, key, value)
}

type fixture struct {
	t          *testing.T
	clock      time.Time
	directory  *MemoryAccountRepository
	table      *kv.Memory
	registered *KVAccountRepository
	roleRepo   *MemoryRoleRepository
	sessionKV  *kv.Memory
	audit      *recordingSink
	dispatcher *recordingDispatcher
	approvals  *recordingApprovals
	verifier   *Verifier
	roles      *RoleService
	accounts   *AccountService
	workflow   *ApprovalWorkflow
	verify     *VerificationService
	sessions   *SessionManager
	extra      []Option
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		clock:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		directory:  NewMemoryAccountRepository(),
		table:      kv.NewMemory(),
		roleRepo:   NewMemoryRoleRepository(),
		sessionKV:  kv.NewMemory(),
		audit:      &recordingSink{},
		dispatcher: &recordingDispatcher{},
		approvals:  &recordingApprovals{},
		extra:      extra,
	}
	f.registered = NewKVAccountRepository(f.table)

	var err error
	f.verifier, err = NewVerifier([]byte("test-secret"), "lawdesk-test")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	common := f.options()
	if f.roles, err = NewRoleService(f.roleRepo, nil, common...); err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	if f.accounts, err = NewAccountService(f.directory, f.registered, f.roleRepo, nil, common...); err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}
	if f.workflow, err = NewApprovalWorkflow(f.approvals, "admin@firm.test", f.accounts, common...); err != nil {
		t.Fatalf("NewApprovalWorkflow: %v", err)
	}
	if f.verify, err = NewVerificationService(f.verifier, f.registered, common...); err != nil {
		t.Fatalf("NewVerificationService: %v", err)
	}
	f.sessions = f.newSessionManager(f.sessionKV)
	return f
}

func (f *fixture) options() []Option {
	opts := []Option{
		WithAuditSink(f.audit),
		WithClock(func() time.Time { return f.clock }),
	}
	return append(opts, f.extra...)
}

// newSessionManager simulates a process restart: a fresh manager over the
// same stores.
func (f *fixture) newSessionManager(store KV) *SessionManager {
	f.t.Helper()
	opts := append(f.options(),
		WithVerification(f.verifier, f.dispatcher),
		WithApprovalWorkflow(f.workflow),
	)
	m, err := NewSessionManager(f.registered, f.directory, store, opts...)
	if err != nil {
		f.t.Fatalf("NewSessionManager: %v", err)
	}
	return m
}

func (f *fixture) provision(email string, role RoleTag) Account {
	f.t.Helper()
	a, err := f.accounts.Create(context.Background(), Profile{Email: email, Role: role})
	if err != nil {
		f.t.Fatalf("provision %s: %v", email, err)
	}
	return a
}

func (f *fixture) register(email string, role RoleTag) RegistrationResult {
	f.t.Helper()
	res, err := f.sessions.Register(context.Background(), email, "s3cret-pass", role)
	if err != nil {
		f.t.Fatalf("register %s as %s: %v", email, role, err)
	}
	return res
}

func (f *fixture) markVerified(id string) {
	f.t.Helper()
	if _, err := f.accounts.MarkVerified(context.Background(), id); err != nil {
		f.t.Fatalf("MarkVerified: %v", err)
	}
}
