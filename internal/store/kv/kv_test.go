package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v err %v", ok, err)
	}
	if err := s.Set(ctx, "is_authenticated", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "is_authenticated")
	if err != nil || !ok || v != "true" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := s.Remove(ctx, "is_authenticated"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "is_authenticated"); ok {
		t.Fatal("expected key to be removed")
	}
	if err := s.Remove(ctx, "never-set"); err != nil {
		t.Fatalf("Remove(absent) should succeed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestRedisStore(t *testing.T) {
	client, _ := setupTestRedis(t)
	exerciseStore(t, NewRedis(client, 0))
}

func TestRedisStoreTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedis(client, time.Minute)
	if err := s.Set(context.Background(), "current_account", "snapshot"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("current_account"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), "current_account"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestPrefixedIsolatesClients(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := ClientScope(base, "a")
	b := ClientScope(base, "b")

	if err := a.Set(ctx, "is_authenticated", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "is_authenticated"); ok {
		t.Fatal("client b must not see client a's key")
	}
	if v, ok, _ := base.Get(ctx, "client:a:is_authenticated"); !ok || v != "true" {
		t.Fatalf("unexpected raw key state: %q %v", v, ok)
	}
	exerciseStore(t, WithPrefix(base, "scope:"))
}

func TestNewRedisClientPings(t *testing.T) {
	_, mr := setupTestRedis(t)
	client, err := NewRedisClient(context.Background(), RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisClient(context.Background(), RedisOptions{Addr: addr}); err == nil {
		t.Fatal("expected ping failure against closed server")
	}
}
