// Package httpapi implements the JSON HTTP surface: login, order
// placement and lookup, and admin broadcast control.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/epic1st/rtx/backend/auth"
	"github.com/epic1st/rtx/backend/broadcast"
	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/metrics"
	"github.com/epic1st/rtx/backend/orders"
	"github.com/epic1st/rtx/backend/session"
	"github.com/google/uuid"
)

// Server wires every HTTP handler to its collaborators.
type Server struct {
	authService *auth.Service
	registry    *session.Registry
	orderStore  *orders.Store
	controller  *broadcast.Controller
	auditLog    *logging.AuditLogger
	startedAt   time.Time
}

// NewServer constructs a Server. auditLog may be nil, in which case
// authentication events are simply not audited.
func NewServer(authService *auth.Service, registry *session.Registry, orderStore *orders.Store, controller *broadcast.Controller, auditLog *logging.AuditLogger) *Server {
	return &Server{
		authService: authService,
		registry:    registry,
		orderStore:  orderStore,
		controller:  controller,
		auditLog:    auditLog,
		startedAt:   time.Now().UTC(),
	}
}

// Routes builds the ServeMux this server answers on.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /login", s.handleLogin)

	mux.HandleFunc("POST /orders", s.withUser(s.handlePlaceOrder))
	mux.HandleFunc("GET /orders", s.withUser(s.handleListOrders))
	mux.HandleFunc("GET /orders/{id}", s.withUser(s.handleGetOrder))
	mux.HandleFunc("DELETE /orders/{id}", s.withUser(s.handleCancelOrder))

	mux.HandleFunc("POST /start-broadcast", s.withAdmin(s.handleStartBroadcast))
	mux.HandleFunc("POST /pause-broadcast", s.withAdmin(s.handlePauseBroadcast))
	mux.HandleFunc("POST /resume-broadcast", s.withAdmin(s.handleResumeBroadcast))
	mux.HandleFunc("POST /stop-broadcast", s.withAdmin(s.handleStopBroadcast))
	mux.HandleFunc("POST /restart-broadcast", s.withAdmin(s.handleRestartBroadcast))
	mux.HandleFunc("GET /broadcast-status", s.withAdmin(s.handleBroadcastStatus))
	mux.Handle("GET /metrics", metrics.Handler())

	logger := logging.Default()
	return logging.PanicRecoveryMiddleware(logger)(logging.HTTPLoggingMiddleware(logger)(metricsMiddleware(mux)))
}

// metricsMiddleware records request counts and latency per route for
// SPEC_FULL §6.2's /metrics surface.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(r.URL.Path, r.Method, strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "rtx-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username cannot be empty")
		return
	}

	token, claims, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logging.Error("login token issuance failed", err, logging.String("username", req.Username))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if s.auditLog != nil {
		s.auditLog.LogAuthentication(r.Context(), req.Username, r.RemoteAddr, "trust-on-login")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"token":       token,
		"user_id":     claims.UserID,
		"permissions": claims.Permissions,
	})
}

// withUser requires a valid bearer token and injects the resulting
// claims into the request context.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r, claims)
	}
}

// withAdmin requires a valid bearer token carrying the admin permission.
func (s *Server) withAdmin(next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if !claims.HasPermission(auth.AdminPermission) {
			writeError(w, http.StatusForbidden, "admin permission required")
			return
		}
		next(w, r, claims)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	claims, err := s.registry.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return nil, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req orders.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := s.orderStore.Place(req, claims.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	all := s.orderStore.ListByUser(claims.UserID)

	query := r.URL.Query()
	if symbol := query.Get("symbol"); symbol != "" {
		all = filterOrders(all, func(o orders.Order) bool {
			return strings.EqualFold(o.Symbol, symbol)
		})
	}
	if status := query.Get("status"); status != "" {
		all = filterOrders(all, func(o orders.Order) bool {
			return strings.EqualFold(string(o.Status), status)
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if limitParam := query.Get("limit"); limitParam != "" {
		if n, err := strconv.Atoi(limitParam); err == nil && n >= 0 && n < len(all) {
			all = all[:n]
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "orders": all, "total": total})
}

func filterOrders(in []orders.Order, keep func(orders.Order) bool) []orders.Order {
	out := in[:0:0]
	for _, o := range in {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, ok := s.orderStore.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "you can only view your own orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := s.orderStore.Cancel(id, claims.UserID)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, orders.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, orders.ErrNotCancellable):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

func (s *Server) handleStartBroadcast(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	message, err := s.controller.Start()
	if err != nil {
		writeError(w, statusForBroadcastError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (s *Server) handlePauseBroadcast(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	message, err := s.controller.Pause()
	if err != nil {
		writeError(w, statusForBroadcastError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (s *Server) handleResumeBroadcast(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	message, err := s.controller.Resume()
	if err != nil {
		writeError(w, statusForBroadcastError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (s *Server) handleStopBroadcast(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	message, err := s.controller.Stop()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (s *Server) handleRestartBroadcast(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	message, err := s.controller.Restart()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (s *Server) handleBroadcastStatus(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	state, symbolCount, totalRecords := s.controller.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":         state,
		"symbol_count":  symbolCount,
		"total_records": totalRecords,
	})
}

func statusForBroadcastError(err error) int {
	if errors.Is(err, broadcast.ErrIllegalTransition) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
