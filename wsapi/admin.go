package wsapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/epic1st/rtx/backend/adminbus"
	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/orders"
	"github.com/epic1st/rtx/backend/session"
	"github.com/gorilla/websocket"
)

// adminOrderView is the order_event envelope's order object, carrying
// the derived remaining_quantity alongside the stored fields.
type adminOrderView struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Symbol            string    `json:"symbol"`
	Side              orders.Side `json:"side"`
	OrderType         orders.Type `json:"order_type"`
	Quantity          uint32    `json:"quantity"`
	Price             *float64  `json:"price,omitempty"`
	StopPrice         *float64  `json:"stop_price,omitempty"`
	Status            orders.Status `json:"status"`
	FilledQuantity    uint32    `json:"filled_quantity"`
	RemainingQuantity uint32    `json:"remaining_quantity"`
	AveragePrice      *float64  `json:"average_price,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type adminEnvelope struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type,omitempty"`
	Order     *adminOrderView `json:"order,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func toAdminOrderView(o orders.Order, userID string) adminOrderView {
	return adminOrderView{
		ID:                o.ID.String(),
		UserID:            userID,
		Symbol:            o.Symbol,
		Side:              o.Side,
		OrderType:         o.Type,
		Quantity:          o.Quantity,
		Price:             o.Price,
		StopPrice:         o.StopPrice,
		Status:            o.Status,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity(),
		AveragePrice:      o.AveragePrice,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// AdminHandler serves the admin order event feed at GET /admin.
type AdminHandler struct {
	registry *session.Registry
	bus      *adminbus.Bus
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(registry *session.Registry, bus *adminbus.Bus) *AdminHandler {
	return &AdminHandler{registry: registry, bus: bus}
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	claims, err := h.registry.Verify(token)
	if err != nil {
		logging.Warn("admin websocket authentication failed", logging.String("error", err.Error()), logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !claims.HasPermission("admin") {
		logging.Warn("admin websocket rejected: missing admin permission", logging.String("user_id", claims.UserID))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("admin websocket upgrade failed", err, logging.String("user_id", claims.UserID))
		return
	}

	ac := &adminConn{conn: conn, userID: claims.UserID, bus: h.bus}
	ac.run()
}

type adminConn struct {
	conn   *websocket.Conn
	userID string
	bus    *adminbus.Bus
}

func (c *adminConn) run() {
	defer c.conn.Close()

	logging.Info("admin websocket connected", logging.String("user_id", c.userID))

	welcome := adminEnvelope{Type: "admin_connected", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := c.writeJSON(welcome); err != nil {
		logging.Error("failed to send admin welcome message", err, logging.String("user_id", c.userID))
		return
	}

	sub := c.bus.Subscribe()
	defer c.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go c.drainReads(done)

	for {
		select {
		case event, ok := <-sub.C():
			if !ok {
				logging.Info("admin event bus closed", logging.String("user_id", c.userID))
				return
			}
			if lag := sub.TakeLag(); lag > 0 {
				logging.Warn("admin client lagged", logging.String("user_id", c.userID), logging.Int64("skipped", lag))
				lagMsg := adminEnvelope{
					Type:      "lag_warning",
					Message:   lagWarningMessage(lag),
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				}
				if err := c.writeJSON(lagMsg); err != nil {
					logging.Error("failed to send lag warning", err, logging.String("user_id", c.userID))
					return
				}
			}

			view := toAdminOrderView(event.Order, event.UserID)
			envelope := adminEnvelope{
				Type:      "order_event",
				EventType: string(event.EventType),
				Order:     &view,
				Timestamp: event.Timestamp,
			}
			if err := c.writeJSON(envelope); err != nil {
				logging.Error("failed to send order event to admin", err, logging.String("user_id", c.userID))
				return
			}

		case <-done:
			logging.Info("admin websocket closing", logging.String("user_id", c.userID))
			return
		}
	}
}

// drainReads consumes incoming frames (pings, pongs, close) without
// acting on them; the admin feed is server-push only.
func (c *adminConn) drainReads(done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *adminConn) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func lagWarningMessage(skipped int64) string {
	return fmt.Sprintf("Client lagged, %d events skipped", skipped)
}
