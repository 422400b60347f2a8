package logging

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrorTracker aggregates error occurrences so the panic-recovery path can
// report counts and affected users instead of a bare message.
type ErrorTracker struct {
	mu              sync.RWMutex
	errors          map[string]*ErrorStats
	cleanupInterval time.Duration
	retentionPeriod time.Duration
	stopChan        chan struct{}
}

// ErrorStats tracks statistics for a specific error
type ErrorStats struct {
	ErrorType     string
	Message       string
	Count         int64
	FirstSeen     time.Time
	LastSeen      time.Time
	Occurrences   []time.Time
	Contexts      []map[string]interface{}
	StackTraces   []string
	AffectedUsers map[string]bool
	Severity      string
}

// NewErrorTracker creates a new error tracker
func NewErrorTracker() *ErrorTracker {
	et := &ErrorTracker{
		errors:          make(map[string]*ErrorStats),
		cleanupInterval: 5 * time.Minute,
		retentionPeriod: 1 * time.Hour,
		stopChan:        make(chan struct{}),
	}

	go et.cleanupLoop()

	return et
}

// Track records an error occurrence. Call context should carry request-scoped
// fields (session_id, order_id, symbol) so AffectedUsers and Contexts reflect
// the domain, not just the error string.
func (et *ErrorTracker) Track(ctx context.Context, err error, severity string, extra map[string]interface{}) {
	if err == nil {
		return
	}

	errorKey := fmt.Sprintf("%s:%s", severity, err.Error())

	et.mu.Lock()
	defer et.mu.Unlock()

	stats, exists := et.errors[errorKey]
	if !exists {
		stats = &ErrorStats{
			ErrorType:     getErrorType(err),
			Message:       err.Error(),
			FirstSeen:     time.Now(),
			Contexts:      make([]map[string]interface{}, 0),
			StackTraces:   make([]string, 0),
			AffectedUsers: make(map[string]bool),
			Severity:      severity,
		}
		et.errors[errorKey] = stats
	}

	stats.Count++
	stats.LastSeen = time.Now()
	stats.Occurrences = append(stats.Occurrences, time.Now())

	if extra != nil {
		stats.Contexts = append(stats.Contexts, extra)
	}

	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		stats.AffectedUsers[userID] = true
	}

	// Store stack trace for new occurrences (limit to last 10)
	if len(stats.StackTraces) < 10 {
		stats.StackTraces = append(stats.StackTraces, getStackTrace())
	}
}

// cleanupLoop periodically removes old error data
func (et *ErrorTracker) cleanupLoop() {
	ticker := time.NewTicker(et.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			et.cleanup()
		case <-et.stopChan:
			return
		}
	}
}

// cleanup removes errors older than retention period
func (et *ErrorTracker) cleanup() {
	et.mu.Lock()
	defer et.mu.Unlock()

	cutoff := time.Now().Add(-et.retentionPeriod)
	for key, stats := range et.errors {
		if stats.LastSeen.Before(cutoff) {
			delete(et.errors, key)
		}
	}
}

// getErrorType extracts error type from error
func getErrorType(err error) string {
	return fmt.Sprintf("%T", err)
}

// Global error tracker
var globalErrorTracker = NewErrorTracker()

// TrackError tracks an error in the global tracker
func TrackError(ctx context.Context, err error, severity string, extra map[string]interface{}) {
	globalErrorTracker.Track(ctx, err, severity, extra)
}
