package adminbus

import (
	"testing"

	"github.com/epic1st/rtx/backend/orders"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	order, _ := orders.NewStore(nil).Place(orders.Request{Symbol: "NIFTY", Side: orders.Buy, Type: orders.Market, Quantity: 1}, "alice")
	b.Publish(NewEvent(OrderPlaced, order, "alice"))

	event := <-sub.C()
	if event.EventType != OrderPlaced {
		t.Fatalf("event_type = %v, want OrderPlaced", event.EventType)
	}
	if event.Order.ID != order.ID {
		t.Fatal("order id mismatch")
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := NewBus()
	if n := b.Publish(Event{EventType: OrderPlaced}); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if n := b.Publish(Event{EventType: OrderPlaced}); n != 0 {
		t.Fatalf("delivered = %d, want 0 after unsubscribe", n)
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", b.SubscriberCount())
	}
}

func TestLagOnOverflow(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	for i := 0; i < RingCapacity+5; i++ {
		b.Publish(Event{EventType: OrderPlaced})
	}

	if lag := sub.TakeLag(); lag == 0 {
		t.Fatal("expected nonzero lag after overflowing the ring")
	}
	if len(sub.C()) != RingCapacity {
		t.Fatalf("buffered = %d, want %d", len(sub.C()), RingCapacity)
	}
}

func TestMultipleSubscribersEachGetEvent(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	delivered := b.Publish(Event{EventType: OrderCancelled})
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	<-s1.C()
	<-s2.C()
}
