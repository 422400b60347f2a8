package logging

import (
	"sync"
	"time"
)

// PerformanceMetrics tracks slow HTTP endpoints for logging.
type PerformanceMetrics struct {
	mu                    sync.RWMutex
	slowEndpoints         []*SlowEndpoint
	slowEndpointThreshold time.Duration
}

// SlowEndpoint represents a slow HTTP endpoint
type SlowEndpoint struct {
	Method     string
	Path       string
	Duration   time.Duration
	Timestamp  time.Time
	StatusCode int
	RequestID  string
}

// NewPerformanceMetrics creates a new performance metrics tracker
func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{
		slowEndpoints:         make([]*SlowEndpoint, 0),
		slowEndpointThreshold: 1000 * time.Millisecond,
	}
}

// LogSlowEndpoint logs a slow HTTP endpoint
func (pm *PerformanceMetrics) LogSlowEndpoint(method, path string, duration time.Duration, statusCode int, requestID string, logger *Logger) {
	if duration < pm.slowEndpointThreshold {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	se := &SlowEndpoint{
		Method:     method,
		Path:       path,
		Duration:   duration,
		Timestamp:  time.Now(),
		StatusCode: statusCode,
		RequestID:  requestID,
	}

	pm.slowEndpoints = append(pm.slowEndpoints, se)

	// Keep only last 100 slow endpoints
	if len(pm.slowEndpoints) > 100 {
		pm.slowEndpoints = pm.slowEndpoints[1:]
	}

	logger.Warn("Slow HTTP Endpoint",
		String("method", method),
		String("path", path),
		Float64("duration_ms", float64(duration.Milliseconds())),
		Int("status_code", statusCode),
		RequestID(requestID),
		String("threshold_ms", pm.slowEndpointThreshold.String()),
	)
}

// Global performance metrics instance
var globalPerfMetrics = NewPerformanceMetrics()

// LogSlowEndpoint logs a slow endpoint using the global metrics tracker
func LogSlowEndpoint(method, path string, duration time.Duration, statusCode int, requestID string) {
	globalPerfMetrics.LogSlowEndpoint(method, path, duration, statusCode, requestID, defaultLogger)
}
