package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"lawdesk.org/internal/store/kv"
)

func TestClientSessionsIsolateAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register("c@x.com", RoleStaff)
	f.markVerified(res.Account.ID)

	shared := kv.NewMemory()
	factory := func(clientID string) (*SessionManager, error) {
		return NewSessionManager(f.registered, f.directory, kv.ClientScope(shared, clientID))
	}
	clients, err := NewClientSessions(factory)
	if err != nil {
		t.Fatalf("NewClientSessions: %v", err)
	}

	a, err := clients.Get(ctx, "client-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := a.Login(ctx, "c@x.com", "s3cret-pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	b, _ := clients.Get(ctx, "client-b")
	if b.Current() != nil {
		t.Fatal("client b must be anonymous")
	}
	if same, _ := clients.Get(ctx, "client-a"); same != a {
		t.Fatal("expected the cached manager")
	}

	clients.Forget("client-a")
	restored, err := clients.Get(ctx, "client-a")
	if err != nil {
		t.Fatalf("Get after forget: %v", err)
	}
	if restored == a || restored.Current() == nil {
		t.Fatal("expected a fresh manager restored from the store")
	}

	if _, err := clients.Get(ctx, " "); err == nil {
		t.Fatal("expected error for blank client id")
	}
}

func TestClientSessionsSweep(t *testing.T) {
	f := newFixture(t)
	clients, _ := NewClientSessions(func(string) (*SessionManager, error) {
		return NewSessionManager(f.registered, f.directory, kv.NewMemory())
	})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clients.now = func() time.Time { return now }

	_, _ = clients.Get(context.Background(), "old")
	now = now.Add(time.Hour)
	_, _ = clients.Get(context.Background(), "new")

	if n := clients.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("Sweep dropped %d", n)
	}
	if clients.Len() != 1 {
		t.Fatalf("Len = %d", clients.Len())
	}
}

// gatedKV stalls the first read until released.
type gatedKV struct {
	KV
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Get(ctx context.Context, key string) (string, bool, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.KV.Get(ctx, key)
}

func TestClientSessionsConcurrentFirstUseWaitsForRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register("w@x.com", RoleStaff)
	f.markVerified(res.Account.ID)

	shared := kv.NewMemory()
	seed, err := NewSessionManager(f.registered, f.directory, kv.ClientScope(shared, "client-w"))
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	if _, err := seed.Login(ctx, "w@x.com", "s3cret-pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	gate := &gatedKV{KV: kv.ClientScope(shared, "client-w"), entered: make(chan struct{}), release: make(chan struct{})}
	clients, err := NewClientSessions(func(string) (*SessionManager, error) {
		return NewSessionManager(f.registered, f.directory, gate)
	})
	if err != nil {
		t.Fatalf("NewClientSessions: %v", err)
	}

	type result struct {
		m     *SessionManager
		state State
		err   error
	}
	results := make(chan result, 2)
	get := func() {
		m, err := clients.Get(ctx, "client-w")
		var st State
		if m != nil {
			st = m.State()
		}
		results <- result{m: m, state: st, err: err}
	}

	go get()
	<-gate.entered
	go get()
	close(gate.release)

	first, second := <-results, <-results
	for _, r := range []result{first, second} {
		if r.err != nil {
			t.Fatalf("Get: %v", r.err)
		}
		if r.state != StateAuthenticated {
			t.Fatalf("Get returned before restore finished: state=%s", r.state)
		}
	}
	if first.m != second.m {
		t.Fatal("both callers must share one manager")
	}
	if _, err := second.m.Login(ctx, "w@x.com", "s3cret-pass"); err != nil {
		t.Fatalf("Login after restore: %v", err)
	}
}
