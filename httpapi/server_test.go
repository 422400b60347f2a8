package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/epic1st/rtx/backend/auth"
	"github.com/epic1st/rtx/backend/broadcast"
	"github.com/epic1st/rtx/backend/orders"
	"github.com/epic1st/rtx/backend/pubsub"
	"github.com/epic1st/rtx/backend/session"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) (*Server, *auth.Authority) {
	t.Helper()
	authority := auth.NewAuthority("a-test-secret-that-is-long-enough-32b", time.Hour)
	authService := auth.NewService(authority, "admin", mustHash("dev-password"))
	registry := session.NewRegistry(authority)
	store := orders.NewStore(nil)
	controller := broadcast.NewController(pubsub.NewBus(), t.TempDir())
	return NewServer(authService, registry, store, controller, nil), authority
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginRejectsEmptyUsername(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"username": ""})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginThenPlaceOrder(t *testing.T) {
	s, _ := newTestServer(t)

	loginBody, _ := json.Marshal(map[string]string{"username": "alice"})
	loginReq := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(loginBody))
	loginRec := httptest.NewRecorder()
	s.Routes().ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", loginRec.Code)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(loginRec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	orderBody, _ := json.Marshal(orders.Request{Symbol: "nifty", Side: orders.Buy, Type: orders.Market, Quantity: 1})
	orderReq := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(orderBody))
	orderReq.Header.Set("Authorization", "Bearer "+loginResp.Token)
	orderRec := httptest.NewRecorder()
	s.Routes().ServeHTTP(orderRec, orderReq)

	if orderRec.Code != http.StatusOK {
		t.Fatalf("order status = %d, body = %s", orderRec.Code, orderRec.Body.String())
	}
}

func TestOrdersRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBroadcastRoutesRequireAdmin(t *testing.T) {
	s, a := newTestServer(t)
	token, _, err := a.Issue("alice", []string{"user"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/start-broadcast", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBroadcastStatusAsAdmin(t *testing.T) {
	s, a := newTestServer(t)
	token, _, err := a.Issue("admin-user", []string{"user", "admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/broadcast-status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
