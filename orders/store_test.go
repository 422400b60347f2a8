package orders

import "testing"

func ptr(f float64) *float64 { return &f }

func TestPlaceMarketOrder(t *testing.T) {
	s := NewStore(nil)
	order, err := s.Place(Request{Symbol: "nifty", Side: Buy, Type: Market, Quantity: 10}, "alice")
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if order.Symbol != "NIFTY" {
		t.Fatalf("symbol = %q, want upper-cased", order.Symbol)
	}
	if order.Status != Pending {
		t.Fatalf("status = %v, want Pending", order.Status)
	}
}

func TestPlaceLimitRequiresPrice(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Limit, Quantity: 10}, "alice"); err != ErrLimitNeedsPrice {
		t.Fatalf("err = %v, want ErrLimitNeedsPrice", err)
	}
	if _, err := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Limit, Quantity: 10, Price: ptr(100)}, "alice"); err != nil {
		t.Fatalf("Place: %v", err)
	}
}

func TestPlaceStopLossRequiresStopPrice(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Place(Request{Symbol: "NIFTY", Side: Sell, Type: StopLoss, Quantity: 5}, "alice"); err != ErrStopNeedsPrice {
		t.Fatalf("err = %v, want ErrStopNeedsPrice", err)
	}
}

func TestPlaceZeroQuantityRejected(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 0}, "alice"); err != ErrZeroQuantity {
		t.Fatalf("err = %v, want ErrZeroQuantity", err)
	}
}

func TestPlaceEmptySymbolRejected(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Place(Request{Symbol: "  ", Side: Buy, Type: Market, Quantity: 1}, "alice"); err != ErrEmptySymbol {
		t.Fatalf("err = %v, want ErrEmptySymbol", err)
	}
}

func TestGetAndListByUser(t *testing.T) {
	s := NewStore(nil)
	o1, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 1}, "alice")
	s.Place(Request{Symbol: "BANKNIFTY", Side: Sell, Type: Market, Quantity: 2}, "bob")

	got, ok := s.Get(o1.ID)
	if !ok || got.ID != o1.ID {
		t.Fatalf("Get failed for %v", o1.ID)
	}

	aliceOrders := s.ListByUser("alice")
	if len(aliceOrders) != 1 {
		t.Fatalf("len = %d, want 1", len(aliceOrders))
	}

	if len(s.ListByUser("nobody")) != 0 {
		t.Fatal("expected no orders for an unknown user")
	}
}

func TestCancelOwnPendingOrder(t *testing.T) {
	s := NewStore(nil)
	order, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 1}, "alice")

	cancelled, err := s.Cancel(order.ID, "alice")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != Cancelled {
		t.Fatalf("status = %v, want Cancelled", cancelled.Status)
	}

	if _, err := s.Cancel(order.ID, "alice"); err != ErrNotCancellable {
		t.Fatalf("err = %v, want ErrNotCancellable", err)
	}
}

func TestCancelRejectsOtherUsers(t *testing.T) {
	s := NewStore(nil)
	order, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 1}, "alice")

	if _, err := s.Cancel(order.ID, "bob"); err != ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Cancel(newOrder(Request{Symbol: "X", Quantity: 1}, "alice").ID, "alice"); err != ErrOrderNotFound {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestFillPartialThenFull(t *testing.T) {
	s := NewStore(nil)
	order, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 10}, "alice")

	partial, err := s.Fill(order.ID, 100.5, 4)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if partial.Status != Pending || partial.FilledQuantity != 4 {
		t.Fatalf("partial = %+v", partial)
	}
	if partial.RemainingQuantity() != 6 {
		t.Fatalf("remaining = %d, want 6", partial.RemainingQuantity())
	}

	full, err := s.Fill(order.ID, 101, 6)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if full.Status != Filled || full.FilledQuantity != 10 {
		t.Fatalf("full = %+v", full)
	}
	if full.RemainingQuantity() != 0 {
		t.Fatalf("remaining = %d, want 0", full.RemainingQuantity())
	}
}

func TestFillExceedingQuantityRejected(t *testing.T) {
	s := NewStore(nil)
	order, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 5}, "alice")

	if _, err := s.Fill(order.ID, 100, 10); err != ErrFillExceedsQty {
		t.Fatalf("err = %v, want ErrFillExceedsQty", err)
	}
}

func TestAdminPublisherInvokedOnEachTransition(t *testing.T) {
	var events []string
	s := NewStore(func(eventType string, order Order, userID string) {
		events = append(events, eventType)
	})

	order, _ := s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 10}, "alice")
	s.Fill(order.ID, 100, 5)
	s.Fill(order.ID, 100, 5)

	want := []string{EventOrderPlaced, EventOrderPartialFill, EventOrderFilled}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i, e := range want {
		if events[i] != e {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], e)
		}
	}
}

func TestStats(t *testing.T) {
	s := NewStore(nil)
	s.Place(Request{Symbol: "NIFTY", Side: Buy, Type: Market, Quantity: 1}, "alice")
	s.Place(Request{Symbol: "NIFTY", Side: Sell, Type: Market, Quantity: 1}, "bob")

	orders, users := s.Stats()
	if orders != 2 || users != 2 {
		t.Fatalf("orders=%d users=%d, want 2/2", orders, users)
	}
}
