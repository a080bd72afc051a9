package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	tradesExecuted  atomic.Uint64
	ordersRejected  atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeSessions atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordTrade records an executed trade.
func (m *Metrics) RecordTrade() {
	m.tradesExecuted.Add(1)
}

// RecordRejection records a rejected order request.
func (m *Metrics) RecordRejection() {
	m.ordersRejected.Add(1)
}

// IncrementSessions increments active sessions by 1.
func (m *Metrics) IncrementSessions() {
	m.activeSessions.Add(1)
}

// DecrementSessions decrements active sessions by 1.
func (m *Metrics) DecrementSessions() {
	m.activeSessions.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed uint64
	TradesExecuted  uint64
	OrdersRejected  uint64
	ErrorsTotal     uint64
	AvgLatencyNs    int64
	ActiveSessions  int32
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed: m.eventsProcessed.Load(),
		TradesExecuted:  m.tradesExecuted.Load(),
		OrdersRejected:  m.ordersRejected.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		AvgLatencyNs:    avgLatency,
		ActiveSessions:  m.activeSessions.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.tradesExecuted.Store(0)
	m.ordersRejected.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeSessions.Store(0)
}
