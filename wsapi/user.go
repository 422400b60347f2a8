// Package wsapi implements ConnectionHandler: the per-WebSocket session
// loop for both the user tick feed and the admin order event feed.
package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/pubsub"
	"github.com/epic1st/rtx/backend/session"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// outboundBuffer is the write channel's depth; it absorbs bursts from
// multiple forwarders without blocking them.
const outboundBuffer = 256

// command is the subscribe/unsubscribe/unsubscribe_all frame a user
// socket accepts.
type command struct {
	Action string `json:"action"`
	Symbol string `json:"symbol,omitempty"`
}

// commandResponse mirrors the SubscriptionResponse wire shape.
type commandResponse struct {
	Status  string `json:"status"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

// UserHandler serves the user tick feed at GET /ws.
type UserHandler struct {
	registry *session.Registry
	bus      *pubsub.Bus
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(registry *session.Registry, bus *pubsub.Bus) *UserHandler {
	return &UserHandler{registry: registry, bus: bus}
}

func (h *UserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	claims, err := h.registry.Acquire(token)
	if err != nil {
		logging.Warn("user websocket authentication failed", logging.String("error", err.Error()), logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.registry.Release(claims.SessionID)
		logging.Error("websocket upgrade failed", err, logging.SessionID(claims.SessionID))
		return
	}

	uc := &userConn{
		conn:      conn,
		sessionID: claims.SessionID,
		registry:  h.registry,
		bus:       h.bus,
		out:       make(chan []byte, outboundBuffer),
		done:      make(chan struct{}),
		subs:      make(map[string]context.CancelFunc),
	}
	uc.run()
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

type userConn struct {
	conn      *websocket.Conn
	sessionID string
	registry  *session.Registry
	bus       *pubsub.Bus

	out  chan []byte
	done chan struct{}
	once sync.Once

	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
}

func (c *userConn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *userConn) run() {
	logging.Info("user websocket connected", logging.SessionID(c.sessionID))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.heartbeatLoop() }()

	c.readPump()
	c.close()
	wg.Wait()

	c.cancelAllSubs()
	c.bus.CleanupSession(c.sessionID)
	c.registry.Release(c.sessionID)

	logging.Info("user websocket disconnected", logging.SessionID(c.sessionID))
}

func (c *userConn) writePump() {
	defer c.conn.Close()
	for {
		select {
		case message, ok := <-c.out:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Warn("user websocket write failed", logging.SessionID(c.sessionID), logging.String("error", err.Error()))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *userConn) heartbeatLoop() {
	ticker := time.NewTicker(session.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.registry.Heartbeat(c.sessionID)
		case <-c.done:
			return
		}
	}
}

func (c *userConn) readPump() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logging.Warn("ignoring non-JSON websocket frame", logging.SessionID(c.sessionID))
			continue
		}

		c.handleCommand(cmd)
	}
}

func (c *userConn) handleCommand(cmd command) {
	switch cmd.Action {
	case "subscribe":
		c.handleSubscribe(cmd.Symbol)
	case "unsubscribe":
		c.handleUnsubscribe(cmd.Symbol)
	case "unsubscribe_all":
		c.handleUnsubscribeAll()
	default:
		logging.Warn("unknown websocket command", logging.SessionID(c.sessionID), logging.String("action", cmd.Action))
	}
}

func (c *userConn) handleSubscribe(symbol string) {
	c.subsMu.Lock()
	if _, exists := c.subs[symbol]; exists {
		c.subsMu.Unlock()
		c.respond(commandResponse{Status: "error", Symbol: symbol, Message: "Already subscribed to this symbol"})
		return
	}
	c.subsMu.Unlock()

	rx, err := c.bus.Subscribe(c.sessionID, symbol)
	if err != nil {
		c.respond(commandResponse{Status: "error", Symbol: symbol, Message: "Already subscribed to this symbol"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.subsMu.Lock()
	c.subs[symbol] = cancel
	c.subsMu.Unlock()

	go c.forward(ctx, rx)

	c.respond(commandResponse{Status: "success", Symbol: symbol, Message: "Successfully subscribed"})
}

func (c *userConn) handleUnsubscribe(symbol string) {
	c.subsMu.Lock()
	cancel, exists := c.subs[symbol]
	if exists {
		delete(c.subs, symbol)
	}
	c.subsMu.Unlock()

	if !exists {
		c.respond(commandResponse{Status: "error", Symbol: symbol, Message: "Not subscribed to this symbol"})
		return
	}
	cancel()

	if _, err := c.bus.Unsubscribe(c.sessionID, symbol); err != nil {
		logging.Warn("bus unsubscribe failed after local cancel", logging.SessionID(c.sessionID), logging.String("symbol", symbol))
	}
	c.respond(commandResponse{Status: "success", Symbol: symbol, Message: "Successfully unsubscribed"})
}

func (c *userConn) handleUnsubscribeAll() {
	c.cancelAllSubs()
	c.bus.CleanupSession(c.sessionID)
	c.respond(commandResponse{Status: "success", Message: "Unsubscribed from all symbols"})
}

func (c *userConn) cancelAllSubs() {
	c.subsMu.Lock()
	cancels := c.subs
	c.subs = make(map[string]context.CancelFunc)
	c.subsMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// forward pipes one subscription's receiver into the shared write
// channel until cancelled or the receiver closes.
func (c *userConn) forward(ctx context.Context, rx *pubsub.Receiver) {
	for {
		select {
		case payload, ok := <-rx.C():
			if !ok {
				return
			}
			select {
			case c.out <- payload:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *userConn) respond(resp commandResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case c.out <- payload:
	case <-c.done:
	}
}
