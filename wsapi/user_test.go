package wsapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractTokenFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc123", nil)
	if got := extractToken(r); got != "abc123" {
		t.Fatalf("got %q, want abc123", got)
	}
}

func TestExtractTokenFromAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz789")
	if got := extractToken(r); got != "xyz789" {
		t.Fatalf("got %q, want xyz789", got)
	}
}

func TestExtractTokenMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := extractToken(r); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestCommandUnmarshal(t *testing.T) {
	var cmd command
	if err := json.Unmarshal([]byte(`{"action":"subscribe","symbol":"NIFTY"}`), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Action != "subscribe" || cmd.Symbol != "NIFTY" {
		t.Fatalf("cmd = %+v", cmd)
	}
}
