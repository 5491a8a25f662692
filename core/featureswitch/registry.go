package featureswitch

import (
	"context"
	"strings"
	"sync"
	"time"
)

var nowFunc = time.Now // mockable

// Session identifies one dashboard session (one mounted gate).
type Session struct {
	ID       string // JWT subject
	SchoolID string
	Token    string // bearer token the session authenticated with

	// Credentials is set by the Registry and follows the session's latest token.
	Credentials *Credentials
}

// BearerToken returns the latest token of the session.
func (s Session) BearerToken() string {
	if s.Credentials != nil {
		return s.Credentials.Token()
	}
	return s.Token
}

// Credentials holds the current bearer token of a mounted session.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ResolverFactory builds the Resolver of a new session.
type ResolverFactory func(sess Session) *Resolver

type registryEntry struct {
	resolver *Resolver
	creds    *Credentials
	lastUsed time.Time
}

// Registry holds one Resolver per session: created on first use, dropped on Release or
// once idle for longer than the TTL. Resolvers are never shared between sessions.
type Registry struct {
	factory ResolverFactory
	ttl     time.Duration
	metrics Metrics

	mu      sync.Mutex
	entries map[string]*registryEntry
}

func NewRegistry(factory ResolverFactory, ttl time.Duration, metrics Metrics) *Registry {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Registry{
		factory: factory,
		ttl:     ttl,
		metrics: metrics,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the session's Resolver, mounting a new one if needed.
// A session whose school changed gets a fresh Resolver. The token of a mounted session
// is replaced by the one sess carries.
func (reg *Registry) Get(sess Session) *Resolver {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := sess.ID + "@" + sess.SchoolID
	entry, ok := reg.entries[key]
	if !ok {
		creds := NewCredentials(sess.Token)
		sess.Credentials = creds
		entry = &registryEntry{resolver: reg.factory(sess), creds: creds}
		reg.entries[key] = entry
		reg.metrics.SetSessions(len(reg.entries))
	} else if sess.Token != "" {
		entry.creds.Set(sess.Token)
	}
	entry.lastUsed = nowFunc()
	return entry.resolver
}

// Release unmounts every Resolver of the session.
func (reg *Registry) Release(sessionID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	prefix := sessionID + "@"
	for key := range reg.entries {
		if strings.HasPrefix(key, prefix) {
			delete(reg.entries, key)
		}
	}
	reg.metrics.SetSessions(len(reg.entries))
}

// Sweep drops Resolvers idle for longer than the TTL and returns how many were dropped.
func (reg *Registry) Sweep() int {
	if reg.ttl <= 0 {
		return 0
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var dropped int
	deadline := nowFunc().Add(-reg.ttl)
	for key, entry := range reg.entries {
		if entry.lastUsed.Before(deadline) {
			delete(reg.entries, key)
			dropped++
		}
	}
	reg.metrics.SetSessions(len(reg.entries))
	return dropped
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// Run sweeps every interval until ctx is done.
func (reg *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep()
		}
	}
}
