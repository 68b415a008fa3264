// Package kv implements the string key-value persistence store behind
// session restoration and the self-registration table.
package kv

import (
	"context"
	"sync"
)

// Store is the key-value contract. Get reports absence with ok=false and a
// nil error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys returns the stored keys; used by tests and diagnostics.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

// Prefixed scopes every key of an underlying store under a fixed prefix.
type Prefixed struct {
	store  Store
	prefix string
}

var _ Store = Prefixed{}

// WithPrefix returns a view of store whose keys are prefix+key.
func WithPrefix(store Store, prefix string) Prefixed {
	return Prefixed{store: store, prefix: prefix}
}

// ClientScope namespaces a store for one client context.
func ClientScope(store Store, clientID string) Prefixed {
	return WithPrefix(store, "client:"+clientID+":")
}

func (p Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p Prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}
