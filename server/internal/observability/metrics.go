package observability

import (
	"sync/atomic"
)

// Metrics collects counters for streaming turns.
type Metrics struct {
	turnTotal    atomic.Int64
	turnFailed   atomic.Int64
	streamEvents atomic.Int64
}

// Global metrics instance.
var globalMetrics = &Metrics{}

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordTurn records one streaming turn.
func (m *Metrics) RecordTurn() {
	m.turnTotal.Add(1)
}

// RecordTurnFailure records a turn that ended in a stream error.
func (m *Metrics) RecordTurnFailure() {
	m.turnFailed.Add(1)
}

// RecordStreamEvent records one emitted stream event.
func (m *Metrics) RecordStreamEvent() {
	m.streamEvents.Add(1)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() (turns, failures, events int64) {
	return m.turnTotal.Load(), m.turnFailed.Load(), m.streamEvents.Load()
}
