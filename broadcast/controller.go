// Package broadcast implements the BroadcastController: a state machine
// that loads tick data and fans it out to the PubSubBus one record at a
// time, one goroutine per symbol.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/metrics"
	"github.com/epic1st/rtx/backend/pubsub"
	"github.com/epic1st/rtx/backend/ticksource"
)

// State is one of the three BroadcastController states.
type State string

const (
	Stopped State = "stopped"
	Running State = "running"
	Paused  State = "paused"
)

// TickInterval is how often each symbol goroutine publishes its next
// record while running.
const TickInterval = 1 * time.Second

// PausedPollInterval is how often a paused symbol goroutine rechecks
// state before resuming.
const PausedPollInterval = 100 * time.Millisecond

// ErrIllegalTransition is returned when a command does not apply to the
// controller's current state.
var ErrIllegalTransition = errors.New("illegal_transition")

// StockMessage is the wire envelope published to a symbol's topic.
type StockMessage struct {
	Symbol    string               `json:"symbol"`
	Data      ticksource.TickRecord `json:"data"`
	Timestamp string               `json:"timestamp"`
}

// Controller is the BroadcastController.
type Controller struct {
	bus     *pubsub.Bus
	dataDir string

	mu         sync.Mutex
	state      State
	loaded     map[string][]ticksource.TickRecord
	generation int // incremented on every Start/Stop/Restart to fence stale goroutines
	wg         sync.WaitGroup
}

// NewController constructs a stopped BroadcastController that reads tick
// data from dataDir when started.
func NewController(bus *pubsub.Bus, dataDir string) *Controller {
	return &Controller{
		bus:     bus,
		dataDir: dataDir,
		state:   Stopped,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports (state, symbol_count, total_records) for the currently
// loaded data set.
func (c *Controller) Status() (State, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, records := range c.loaded {
		total += len(records)
	}
	return c.state, len(c.loaded), total
}

// Start loads tick data and begins broadcasting. Only legal from Stopped.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	if c.state != Stopped {
		cur := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("%w: cannot start while %s", ErrIllegalTransition, cur)
	}
	c.mu.Unlock()

	data, err := c.loadData()
	if err != nil {
		return "", fmt.Errorf("failed to load data: %w", err)
	}

	symbolCount := len(data)
	totalRecords := 0
	for _, records := range data {
		totalRecords += len(records)
	}

	c.mu.Lock()
	c.loaded = data
	c.state = Running
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	for symbol, records := range data {
		c.wg.Add(1)
		go c.runSymbol(symbol, records, gen)
	}

	metrics.SetBroadcastState(string(Running))
	logging.Info("broadcasting started", logging.Int("symbol_count", symbolCount), logging.Int("total_records", totalRecords))
	return fmt.Sprintf("broadcasting started for %d symbols with %d total records", symbolCount, totalRecords), nil
}

// Pause suspends broadcasting. Only legal from Running.
func (c *Controller) Pause() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return "", fmt.Errorf("%w: cannot pause while %s", ErrIllegalTransition, c.state)
	}
	c.state = Paused
	metrics.SetBroadcastState(string(Paused))
	logging.Info("broadcasting paused")
	return "broadcasting paused successfully", nil
}

// Resume continues broadcasting. Only legal from Paused.
func (c *Controller) Resume() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return "", fmt.Errorf("%w: cannot resume while %s", ErrIllegalTransition, c.state)
	}
	c.state = Running
	metrics.SetBroadcastState(string(Running))
	logging.Info("broadcasting resumed")
	return "broadcasting resumed successfully", nil
}

// Stop halts broadcasting and discards loaded data. Legal from any state.
func (c *Controller) Stop() (string, error) {
	c.mu.Lock()
	c.state = Stopped
	c.loaded = nil
	c.generation++
	c.mu.Unlock()

	c.wg.Wait()
	metrics.SetBroadcastState(string(Stopped))
	logging.Info("broadcasting stopped")
	return "broadcasting stopped successfully", nil
}

// Restart stops then starts. Legal from any state.
func (c *Controller) Restart() (string, error) {
	if _, err := c.Stop(); err != nil {
		return "", err
	}
	return c.Start()
}

func (c *Controller) runSymbol(symbol string, records []ticksource.TickRecord, gen int) {
	defer c.wg.Done()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	logging.Info("starting symbol broadcast", logging.Symbol(symbol), logging.Int("records", len(records)))

	for i, record := range records {
		<-ticker.C

		if !c.currentGeneration(gen) {
			return
		}

		for c.isPaused(gen) {
			time.Sleep(PausedPollInterval)
			if !c.currentGeneration(gen) {
				return
			}
		}

		if !c.isRunning(gen) {
			return
		}

		msg := StockMessage{
			Symbol:    symbol,
			Data:      record,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			logging.Error("failed to marshal tick message", err, logging.Symbol(symbol))
			continue
		}

		delivered := c.bus.Publish(symbol, payload)
		metrics.RecordTickPublished(symbol)
		metrics.SetSymbolSubscribers(symbol, c.bus.SubscriberCount(symbol))
		topicCount, _ := c.bus.Stats()
		metrics.SetPubSubStats(topicCount)
		if delivered > 0 {
			logging.Debug("broadcasted tick", logging.Symbol(symbol), logging.Int("record", i+1), logging.Int("subscribers", delivered))
		}
	}

	logging.Info("completed symbol broadcast", logging.Symbol(symbol))
}

func (c *Controller) currentGeneration(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state != Stopped
}

func (c *Controller) isPaused(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state == Paused
}

func (c *Controller) isRunning(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state == Running
}

// loadData implements the three-step fallback chain: a directory of
// per-symbol CSVs, then a single NIFTY.csv, then an in-memory fixture.
func (c *Controller) loadData() (map[string][]ticksource.TickRecord, error) {
	data, err := ticksource.LoadDir(c.dataDir)
	if err == nil && len(data) > 0 {
		logging.Info("loaded symbols from data directory", logging.Int("symbol_count", len(data)))
		return data, nil
	}
	if err != nil {
		logging.Warn("failed to load data directory, falling back to single file", logging.String("error", err.Error()))
	} else {
		logging.Warn("data directory contained no usable symbols, falling back to single file")
	}

	single, fallbackErr := ticksource.LoadFile(filepath.Join(c.dataDir, "NIFTY.csv"))
	if fallbackErr == nil {
		logging.Info("loaded fallback NIFTY data")
		return map[string][]ticksource.TickRecord{"NIFTY": single}, nil
	}
	logging.Warn("fallback NIFTY.csv also unavailable, using in-memory fixture", logging.String("error", fallbackErr.Error()))

	return ticksource.DefaultFixture(), nil
}
