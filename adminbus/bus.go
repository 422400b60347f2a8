// Package adminbus implements the AdminEventBus: a single lossy
// fan-out channel of order lifecycle events consumed by admin
// WebSocket connections. It reuses the ring-buffer/lag discipline of
// the pubsub package rather than a library broadcast channel, since the
// standard library has no lossy multi-consumer primitive.
package adminbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/epic1st/rtx/backend/orders"
)

// RingCapacity is the buffer depth of every admin subscriber's channel.
const RingCapacity = 100

// EventType names the lifecycle transition an Event describes.
type EventType string

const (
	OrderPlaced      EventType = "order_placed"
	OrderCancelled   EventType = "order_cancelled"
	OrderFilled      EventType = "order_filled"
	OrderPartialFill EventType = "order_partial_fill"
)

// Event is one order lifecycle transition, broadcast to every admin
// subscriber.
type Event struct {
	EventType EventType    `json:"event_type"`
	Order     orders.Order `json:"order"`
	UserID    string       `json:"user_id"`
	Timestamp string       `json:"timestamp"`
}

// NewEvent stamps timestamp with the current time in RFC3339.
func NewEvent(eventType EventType, order orders.Order, userID string) Event {
	return Event{
		EventType: eventType,
		Order:     order,
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Subscription is an admin connection's view onto the event stream.
type Subscription struct {
	ch  chan Event
	lag *int64
	id  uint64
}

// C returns the channel of admin events.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// TakeLag returns and resets the number of events dropped since the
// last call.
func (s *Subscription) TakeLag() int64 {
	return atomic.SwapInt64(s.lag, 0)
}

// Bus is the AdminEventBus.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriberState
}

type subscriberState struct {
	ch  chan Event
	lag int64
}

// NewBus constructs an empty AdminEventBus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscriberState)}
}

// Subscribe registers a new admin listener.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	s := &subscriberState{ch: make(chan Event, RingCapacity)}
	b.subs[id] = s

	return &Subscription{ch: s.ch, lag: &s.lag, id: id}
}

// Unsubscribe removes an admin listener and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[sub.id]; ok {
		close(s.ch)
		delete(b.subs, sub.id)
	}
}

// Publish best-effort delivers event to every subscriber, dropping the
// oldest buffered event and incrementing that subscriber's lag counter
// on overflow rather than blocking the caller.
func (b *Bus) Publish(event Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, s := range b.subs {
		select {
		case s.ch <- event:
			delivered++
			continue
		default:
		}

		select {
		case <-s.ch:
			atomic.AddInt64(&s.lag, 1)
		default:
		}
		select {
		case s.ch <- event:
			delivered++
		default:
			atomic.AddInt64(&s.lag, 1)
		}
	}
	return delivered
}

// SubscriberCount reports the number of live admin listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
