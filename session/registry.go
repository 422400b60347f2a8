// Package session implements the SessionRegistry: tracking active
// WebSocket sessions, enforcing the global capacity cap and session_id
// uniqueness, and sweeping connections that stop heartbeating.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/epic1st/rtx/backend/auth"
)

const (
	// MaxSessions is the global cap on concurrently tracked sessions.
	// Admin sockets are verified without ever being registered here, so
	// they never count against this cap.
	MaxSessions = 1000
	// StaleAfter is how long a session may go without a heartbeat
	// before it is eligible for sweeping.
	StaleAfter = 5 * time.Minute
	// SweepInterval is how often the registry should be swept by its
	// owner (cmd/server runs this on a ticker).
	SweepInterval = 60 * time.Second
	// HeartbeatInterval is the cadence ConnectionHandler is expected to
	// call Heartbeat at; documented here for callers, not enforced.
	HeartbeatInterval = 30 * time.Second
)

var (
	ErrTokenInvalid     = errors.New("token_invalid")
	ErrCapacity         = errors.New("capacity")
	ErrSessionCollision = errors.New("session_collision")
)

// Session is a tracked, authenticated connection.
type Session struct {
	SessionID       string
	UserID          string
	Permissions     []string
	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
}

// Registry tracks live sessions behind a single mutex. Every mutator
// holds the lock only for its critical section; it never blocks on
// network I/O while holding it.
type Registry struct {
	authority *auth.Authority

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs a SessionRegistry over the given TokenAuthority.
func NewRegistry(authority *auth.Authority) *Registry {
	return &Registry{
		authority: authority,
		sessions:  make(map[string]*Session),
	}
}

// Acquire verifies token and, on success, registers a new session. It
// fails with ErrTokenInvalid on any verification error, ErrCapacity if
// the registry is full, and ErrSessionCollision if the token's
// session_id is already registered (which should not happen for a
// freshly issued token, but is checked per spec).
func (r *Registry) Acquire(token string) (*auth.Claims, error) {
	claims, err := r.authority.Verify(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= MaxSessions {
		return nil, ErrCapacity
	}
	if _, exists := r.sessions[claims.SessionID]; exists {
		return nil, ErrSessionCollision
	}

	now := time.Now().UTC()
	r.sessions[claims.SessionID] = &Session{
		SessionID:       claims.SessionID,
		UserID:          claims.UserID,
		Permissions:     claims.Permissions,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
	}

	return claims, nil
}

// Verify performs pure token verification without registering a
// session. Used by HTTP handlers and the admin WebSocket path, neither
// of which occupies a registry slot.
func (r *Registry) Verify(token string) (*auth.Claims, error) {
	claims, err := r.authority.Verify(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Release idempotently removes a session.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Heartbeat refreshes a session's last-seen timestamp. Silent if the
// session is unknown (already released or swept).
func (r *Registry) Heartbeat(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastHeartbeatAt = time.Now().UTC()
	}
}

// SweepStale removes every session whose last heartbeat is older than
// StaleAfter, returning the number swept.
func (r *Registry) SweepStale() int {
	cutoff := time.Now().UTC().Add(-StaleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for id, s := range r.sessions {
		if s.LastHeartbeatAt.Before(cutoff) {
			delete(r.sessions, id)
			swept++
		}
	}
	return swept
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RunSweeper runs SweepStale on SweepInterval until stop is closed. The
// caller is expected to run this as a goroutine managed by an errgroup.
func (r *Registry) RunSweeper(stop <-chan struct{}, onSwept func(count int)) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.SweepStale(); n > 0 && onSwept != nil {
				onSwept(n)
			}
		case <-stop:
			return
		}
	}
}
