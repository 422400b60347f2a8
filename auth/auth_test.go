package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testAuthority() *Authority {
	return NewAuthority("a-test-secret-that-is-long-enough-32b", time.Hour)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	a := testAuthority()

	token, claims, err := a.Issue("alice", []string{UserPermission})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims.SessionID == "" {
		t.Fatal("expected a session id")
	}

	got, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID)
	}
	if got.SessionID != claims.SessionID {
		t.Errorf("SessionID mismatch: %q vs %q", got.SessionID, claims.SessionID)
	}
	if !got.HasPermission(UserPermission) {
		t.Error("expected user permission")
	}
	if got.HasPermission(AdminPermission) {
		t.Error("did not expect admin permission")
	}
}

func TestIssueEmptySubject(t *testing.T) {
	a := testAuthority()
	if _, _, err := a.Issue("", nil); err != ErrEmptySubject {
		t.Fatalf("err = %v, want ErrEmptySubject", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	a := NewAuthority("a-test-secret-that-is-long-enough-32b", -time.Hour)
	token, _, err := a.Issue("bob", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := a.Verify(token); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	a := testAuthority()
	token, _, err := a.Issue("carol", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewAuthority("a-different-secret-that-is-also-32b!!", time.Hour)
	if _, err := other.Verify(token); err != ErrBadSignature {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	a := testAuthority()
	if _, err := a.Verify("not-a-jwt"); err != ErrTokenMalformed {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestLoginTrustsNonAdminUsername(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	svc := NewService(testAuthority(), "admin", string(hash))

	token, claims, err := svc.Login("alice", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if claims.HasPermission(AdminPermission) {
		t.Error("trader login should not carry admin permission")
	}
}

func TestLoginAdminRequiresPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	svc := NewService(testAuthority(), "admin", string(hash))

	if _, _, err := svc.Login("admin", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	_, claims, err := svc.Login("admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !claims.HasPermission(AdminPermission) {
		t.Error("expected admin permission")
	}
}

func TestLoginEmptyUsername(t *testing.T) {
	svc := NewService(testAuthority(), "admin", "")
	if _, _, err := svc.Login("", ""); err == nil {
		t.Fatal("expected error for empty username")
	}
}
