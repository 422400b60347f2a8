// Package pubsub implements the PubSubBus: dynamic per-topic fan-out
// with per-session multi-subscription tracking. Topics are created
// lazily on first subscribe and are never garbage collected.
//
// Go has no built-in equivalent of a lossy broadcast channel, so each
// subscription gets its own bounded channel; a publish that finds a
// subscriber's channel full drops the oldest buffered item and records
// a lag count the subscriber observes on its next receive, instead of
// blocking the producer.
package pubsub

import (
	"errors"
	"sync"
	"sync/atomic"
)

// RingCapacity is the buffer depth of every per-subscription channel.
const RingCapacity = 100

var (
	ErrDuplicateSubscription = errors.New("duplicate_subscription")
	ErrNotSubscribed         = errors.New("not_subscribed")
)

// Receiver is a subscriber's view onto one topic.
type Receiver struct {
	ch  chan []byte
	lag *int64
}

// C returns the channel of raw payloads published to the subscribed topic.
func (r *Receiver) C() <-chan []byte {
	return r.ch
}

// TakeLag returns and resets the number of payloads dropped since the
// last call, surfacing the "lagged(n)" signal to the consumer.
func (r *Receiver) TakeLag() int64 {
	return atomic.SwapInt64(r.lag, 0)
}

type topic struct {
	mu          sync.Mutex
	subscribers map[string]*subscriberState // session_id -> state
}

type subscriberState struct {
	ch  chan []byte
	lag int64
}

func newTopic() *topic {
	return &topic{subscribers: make(map[string]*subscriberState)}
}

func (t *topic) subscribe(sessionID string) *Receiver {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &subscriberState{ch: make(chan []byte, RingCapacity)}
	t.subscribers[sessionID] = s
	return &Receiver{ch: s.ch, lag: &s.lag}
}

func (t *topic) unsubscribe(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.subscribers[sessionID]; ok {
		close(s.ch)
		delete(t.subscribers, sessionID)
	}
}

func (t *topic) publish(payload []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	delivered := 0
	for _, s := range t.subscribers {
		select {
		case s.ch <- payload:
			delivered++
			continue
		default:
		}

		// Channel full: drop the oldest entry to make room, then
		// retry once. Never block the producer.
		select {
		case <-s.ch:
			atomic.AddInt64(&s.lag, 1)
		default:
		}
		select {
		case s.ch <- payload:
			delivered++
		default:
			atomic.AddInt64(&s.lag, 1)
		}
	}
	return delivered
}

func (t *topic) subscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Bus is the PubSubBus. topics and sessions are each mutex-protected and
// never held across a channel send.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*topic
	sessions map[string]map[string]struct{} // session_id -> symbols
}

// NewBus constructs an empty PubSubBus.
func NewBus() *Bus {
	return &Bus{
		topics:   make(map[string]*topic),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Subscribe creates a subscription for (sessionID, symbol). It fails
// with ErrDuplicateSubscription if the pair already exists. The topic
// is created on demand if this is its first subscriber.
func (b *Bus) Subscribe(sessionID, symbol string) (*Receiver, error) {
	b.mu.Lock()
	symbols, ok := b.sessions[sessionID]
	if ok {
		if _, dup := symbols[symbol]; dup {
			b.mu.Unlock()
			return nil, ErrDuplicateSubscription
		}
	} else {
		symbols = make(map[string]struct{})
		b.sessions[sessionID] = symbols
	}

	t, ok := b.topics[symbol]
	if !ok {
		t = newTopic()
		b.topics[symbol] = t
	}
	symbols[symbol] = struct{}{}
	b.mu.Unlock()

	return t.subscribe(sessionID), nil
}

// Unsubscribe removes the (sessionID, symbol) binding when symbol is
// non-empty, returning ErrNotSubscribed if it did not exist. When symbol
// is empty, it drains and returns every symbol the session was
// subscribed to (never an error).
func (b *Bus) Unsubscribe(sessionID, symbol string) ([]string, error) {
	b.mu.Lock()
	symbols, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		if symbol == "" {
			return nil, nil
		}
		return nil, ErrNotSubscribed
	}

	if symbol != "" {
		if _, exists := symbols[symbol]; !exists {
			b.mu.Unlock()
			return nil, ErrNotSubscribed
		}
		delete(symbols, symbol)
		if len(symbols) == 0 {
			delete(b.sessions, sessionID)
		}
		t := b.topics[symbol]
		b.mu.Unlock()

		if t != nil {
			t.unsubscribe(sessionID)
		}
		return []string{symbol}, nil
	}

	all := make([]string, 0, len(symbols))
	matched := make([]*topic, 0, len(symbols))
	for sym := range symbols {
		all = append(all, sym)
		if t, ok := b.topics[sym]; ok {
			matched = append(matched, t)
		}
	}
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	for _, t := range matched {
		t.unsubscribe(sessionID)
	}
	return all, nil
}

// CleanupSession unconditionally unsubscribes a session from everything
// it holds. Called on connection teardown regardless of error state.
func (b *Bus) CleanupSession(sessionID string) {
	_, _ = b.Unsubscribe(sessionID, "")
}

// Publish best-effort sends payload to every subscriber of symbol,
// returning the number of subscribers it was delivered to. Publishing
// to a topic with no subscribers is not an error.
func (b *Bus) Publish(symbol string, payload []byte) int {
	b.mu.Lock()
	t, ok := b.topics[symbol]
	b.mu.Unlock()

	if !ok {
		return 0
	}
	return t.publish(payload)
}

// SubscriberCount reports the number of live subscribers for symbol.
func (b *Bus) SubscriberCount(symbol string) int {
	b.mu.Lock()
	t, ok := b.topics[symbol]
	b.mu.Unlock()

	if !ok {
		return 0
	}
	return t.subscriberCount()
}

// Stats reports (topic_count, active_session_count).
func (b *Bus) Stats() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics), len(b.sessions)
}
