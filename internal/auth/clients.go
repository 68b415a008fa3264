package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SessionFactory builds the SessionManager of one client context.
type SessionFactory func(clientID string) (*SessionManager, error)

// ClientSessions keeps one SessionManager per client context. A manager is
// restored from its store the first time its client is seen.
type ClientSessions struct {
	factory SessionFactory
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientEntry
}

// clientEntry is published before its restore runs; ready is closed once
// the restore has finished.
type clientEntry struct {
	manager  *SessionManager
	lastSeen time.Time
	ready    chan struct{}
}

func NewClientSessions(factory SessionFactory) (*ClientSessions, error) {
	if factory == nil {
		return nil, errors.New("session factory is required")
	}
	return &ClientSessions{factory: factory, now: time.Now, clients: make(map[string]*clientEntry)}, nil
}

// Get returns the manager for clientID, creating and restoring it on first
// use. Concurrent callers for a new client wait until that restore is done.
// A restore failure is returned to the first caller together with the
// manager, which then starts anonymous.
func (c *ClientSessions) Get(ctx context.Context, clientID string) (*SessionManager, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrValidation)
	}
	c.mu.Lock()
	if e, ok := c.clients[clientID]; ok {
		e.lastSeen = c.now()
		c.mu.Unlock()
		<-e.ready
		return e.manager, nil
	}
	m, err := c.factory(clientID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	e := &clientEntry{manager: m, lastSeen: c.now(), ready: make(chan struct{})}
	c.clients[clientID] = e
	c.mu.Unlock()

	defer close(e.ready)
	if _, _, err := m.Restore(ctx); err != nil {
		return m, fmt.Errorf("restore session: %w", err)
	}
	return m, nil
}

// Forget drops the in-memory manager for clientID. Persisted markers stay,
// so the next Get restores the session.
func (c *ClientSessions) Forget(clientID string) {
	c.mu.Lock()
	delete(c.clients, clientID)
	c.mu.Unlock()
}

// Sweep forgets clients idle for longer than idle and returns how many were
// dropped.
func (c *ClientSessions) Sweep(idle time.Duration) int {
	cutoff := c.now().Add(-idle)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.clients {
		if e.lastSeen.Before(cutoff) && !e.manager.busy() {
			delete(c.clients, id)
			n++
		}
	}
	return n
}

func (c *ClientSessions) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
