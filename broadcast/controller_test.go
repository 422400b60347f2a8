package broadcast

import (
	"testing"
	"time"

	"github.com/epic1st/rtx/backend/pubsub"
)

func TestStartFromStoppedUsesFixtureWhenNoDataDir(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())

	msg, err := c.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if msg == "" {
		t.Fatal("expected a non-empty status message")
	}

	state, symbolCount, totalRecords := c.Status()
	if state != Running {
		t.Fatalf("state = %v, want Running", state)
	}
	if symbolCount == 0 || totalRecords == 0 {
		t.Fatalf("symbolCount=%d totalRecords=%d, want > 0 from fixture fallback", symbolCount, totalRecords)
	}

	if _, err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDoubleStartIsIllegal(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := c.Start(); err == nil {
		t.Fatal("expected the second Start to be illegal")
	}
}

func TestPauseRequiresRunning(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())
	if _, err := c.Pause(); err == nil {
		t.Fatal("expected Pause from Stopped to be illegal")
	}
}

func TestPauseResumeCycle(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if c.State() != Paused {
		t.Fatalf("state = %v, want Paused", c.State())
	}

	if _, err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.State() != Running {
		t.Fatalf("state = %v, want Running", c.State())
	}

	if _, err := c.Resume(); err == nil {
		t.Fatal("expected Resume from Running to be illegal")
	}
}

func TestStopFromAnyState(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())
	if _, err := c.Stop(); err != nil {
		t.Fatalf("Stop from Stopped: %v", err)
	}

	if _, err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("Stop from Running: %v", err)
	}

	state, symbolCount, _ := c.Status()
	if state != Stopped || symbolCount != 0 {
		t.Fatalf("state=%v symbolCount=%d, want Stopped/0", state, symbolCount)
	}
}

func TestRestart(t *testing.T) {
	c := NewController(pubsub.NewBus(), t.TempDir())
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if _, err := c.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if c.State() != Running {
		t.Fatalf("state = %v, want Running after restart", c.State())
	}
}

func TestPublishesToSubscriber(t *testing.T) {
	bus := pubsub.NewBus()
	c := NewController(bus, t.TempDir())

	rx, err := bus.Subscribe("s1", "NIFTY")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	select {
	case <-rx.C():
	case <-time.After(TickInterval + 5*time.Second):
		t.Fatal("timed out waiting for the first broadcast tick")
	}
}
