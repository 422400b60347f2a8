// Package orders implements the OrderManager: placing, cancelling,
// filling, and querying orders, with an optional hook that emits admin
// lifecycle events for every state transition.
package orders

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the order's execution type.
type Type string

const (
	Market   Type = "market"
	Limit    Type = "limit"
	StopLoss Type = "stop_loss"
)

// Side is the order's direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Status is the order's lifecycle state.
type Status string

const (
	Pending   Status = "pending"
	Filled    Status = "filled"
	Cancelled Status = "cancelled"
	Rejected  Status = "rejected"
)

// Admin event type names, reused verbatim by whatever AdminPublisher is
// wired in (see adminbus.EventType).
const (
	EventOrderPlaced      = "order_placed"
	EventOrderCancelled   = "order_cancelled"
	EventOrderFilled      = "order_filled"
	EventOrderPartialFill = "order_partial_fill"
)

var (
	ErrEmptySymbol      = errors.New("symbol cannot be empty")
	ErrZeroQuantity     = errors.New("quantity must be greater than 0")
	ErrLimitNeedsPrice  = errors.New("price is required and must be positive for limit orders")
	ErrStopNeedsPrice   = errors.New("stop price is required and must be positive for stop loss orders")
	ErrOrderNotFound    = errors.New("order not found")
	ErrUnauthorized     = errors.New("you can only cancel your own orders")
	ErrNotCancellable   = errors.New("order cannot be cancelled in its current status")
	ErrFillExceedsQty   = errors.New("fill quantity exceeds remaining quantity")
)

// Request is an incoming order placement request.
type Request struct {
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Type      Type    `json:"order_type"`
	Quantity  uint32  `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
	StopPrice *float64 `json:"stop_price,omitempty"`
}

// Validate enforces the per-type price invariants.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return ErrEmptySymbol
	}
	if r.Quantity == 0 {
		return ErrZeroQuantity
	}

	switch r.Type {
	case Limit:
		if r.Price == nil || *r.Price <= 0 {
			return ErrLimitNeedsPrice
		}
	case StopLoss:
		if r.StopPrice == nil || *r.StopPrice <= 0 {
			return ErrStopNeedsPrice
		}
	case Market:
	}

	if r.Price != nil && *r.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if r.StopPrice != nil && *r.StopPrice <= 0 {
		return fmt.Errorf("stop price must be positive")
	}
	return nil
}

// Order is a tracked order.
type Order struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Type            Type      `json:"order_type"`
	Quantity        uint32    `json:"quantity"`
	Price           *float64  `json:"price,omitempty"`
	StopPrice       *float64  `json:"stop_price,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	FilledQuantity  uint32    `json:"filled_quantity"`
	AveragePrice    *float64  `json:"average_price,omitempty"`
}

// RemainingQuantity derives the unfilled quantity; never stored, always
// computed, so it can never drift from (quantity - filled_quantity).
func (o Order) RemainingQuantity() uint32 {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

func newOrder(req Request, userID string) Order {
	now := time.Now().UTC()
	return Order{
		ID:        uuid.New(),
		UserID:    userID,
		Symbol:    strings.ToUpper(req.Symbol),
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		StopPrice: req.StopPrice,
		Status:    Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AdminPublisher is the callback a Store invokes on every lifecycle
// transition. Store itself never imports the admin transport so as not
// to create a dependency cycle with whatever fans these events out.
type AdminPublisher func(eventType string, order Order, userID string)

// Store is the OrderManager. Orders and the per-user index are guarded
// by independent locks that are never held across the AdminPublisher
// callback.
type Store struct {
	publish AdminPublisher

	mu         sync.Mutex
	orders     map[uuid.UUID]Order
	userOrders map[string][]uuid.UUID
}

// NewStore constructs an empty Store. publish may be nil.
func NewStore(publish AdminPublisher) *Store {
	return &Store{
		publish:    publish,
		orders:     make(map[uuid.UUID]Order),
		userOrders: make(map[string][]uuid.UUID),
	}
}

func (s *Store) emit(eventType string, order Order, userID string) {
	if s.publish != nil {
		s.publish(eventType, order, userID)
	}
}

// Place validates req and stores a new pending order for userID.
func (s *Store) Place(req Request, userID string) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	order := newOrder(req, userID)

	s.mu.Lock()
	s.orders[order.ID] = order
	s.userOrders[userID] = append(s.userOrders[userID], order.ID)
	s.mu.Unlock()

	s.emit(EventOrderPlaced, order, userID)
	return order, nil
}

// Get looks up one order by id.
func (s *Store) Get(id uuid.UUID) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	return order, ok
}

// ListByUser returns every order placed by userID, in no particular order.
func (s *Store) ListByUser(userID string) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.userOrders[userID]
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := s.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out
}

// ListBySymbol returns every order for symbol across all users.
func (s *Store) ListBySymbol(symbol string) []Order {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, order := range s.orders {
		if order.Symbol == symbol {
			out = append(out, order)
		}
	}
	return out
}

// Cancel transitions a pending order to cancelled. Only the owning user
// may cancel it, and only while it is still pending.
func (s *Store) Cancel(id uuid.UUID, userID string) (Order, error) {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return Order{}, ErrOrderNotFound
	}
	if order.UserID != userID {
		s.mu.Unlock()
		return Order{}, ErrUnauthorized
	}
	if order.Status != Pending {
		s.mu.Unlock()
		return Order{}, ErrNotCancellable
	}

	order.Status = Cancelled
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	s.mu.Unlock()

	s.emit(EventOrderCancelled, order, userID)
	return order, nil
}

// Fill records an execution against a pending order. The order
// transitions to Filled once FilledQuantity reaches Quantity, otherwise
// it stays Pending (a partial fill).
func (s *Store) Fill(id uuid.UUID, fillPrice float64, fillQuantity uint32) (Order, error) {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return Order{}, ErrOrderNotFound
	}
	if order.FilledQuantity+fillQuantity > order.Quantity {
		s.mu.Unlock()
		return Order{}, ErrFillExceedsQty
	}

	order.FilledQuantity += fillQuantity
	order.AveragePrice = &fillPrice
	order.UpdatedAt = time.Now().UTC()

	eventType := EventOrderPartialFill
	if order.FilledQuantity >= order.Quantity {
		order.Status = Filled
		eventType = EventOrderFilled
	}
	s.orders[id] = order
	s.mu.Unlock()

	s.emit(eventType, order, order.UserID)
	return order, nil
}

// Stats reports (total_orders, total_users).
func (s *Store) Stats() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders), len(s.userOrders)
}
