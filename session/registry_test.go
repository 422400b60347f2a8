package session

import (
	"testing"
	"time"

	"github.com/epic1st/rtx/backend/auth"
)

func newTestRegistry() (*Registry, *auth.Authority) {
	a := auth.NewAuthority("a-test-secret-that-is-long-enough-32b", time.Hour)
	return NewRegistry(a), a
}

func TestAcquireAndRelease(t *testing.T) {
	r, a := newTestRegistry()
	token, claims, err := a.Issue("alice", []string{"user"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := r.Acquire(token)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.SessionID != claims.SessionID {
		t.Fatalf("session id mismatch")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	r.Release(claims.SessionID)
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after release", r.Count())
	}

	// idempotent
	r.Release(claims.SessionID)
}

func TestAcquireInvalidToken(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Acquire("garbage"); err != ErrTokenInvalid {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestAcquireCapacity(t *testing.T) {
	r, a := newTestRegistry()

	for i := 0; i < MaxSessions; i++ {
		token, _, err := a.Issue("user", []string{"user"})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := r.Acquire(token); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
	}

	token, _, _ := a.Issue("one-more", []string{"user"})
	if _, err := r.Acquire(token); err != ErrCapacity {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
}

func TestHeartbeatAndSweep(t *testing.T) {
	r, a := newTestRegistry()
	token, claims, _ := a.Issue("alice", []string{"user"})
	if _, err := r.Acquire(token); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	r.mu.Lock()
	r.sessions[claims.SessionID].LastHeartbeatAt = time.Now().UTC().Add(-StaleAfter - time.Second)
	r.mu.Unlock()

	swept := r.SweepStale()
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
}

func TestHeartbeatUnknownSessionIsSilent(t *testing.T) {
	r, _ := newTestRegistry()
	r.Heartbeat("unknown")
}

func TestVerifyWithoutRegistering(t *testing.T) {
	r, a := newTestRegistry()
	token, _, _ := a.Issue("alice", []string{"admin"})

	claims, err := r.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !claims.HasPermission("admin") {
		t.Fatal("expected admin permission")
	}
	if r.Count() != 0 {
		t.Fatalf("Verify must not register a session, Count() = %d", r.Count())
	}
}
