package daemon

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects operational metrics for observability
type Metrics struct {
	startTime time.Time

	// Counters (atomic for lock-free updates)
	MessagesReceived atomic.Int64
	MessagesSent     atomic.Int64
	BytesReceived    atomic.Int64

	// Message counters by type
	msgCountersMu sync.RWMutex
	msgReceived   map[string]int64
	msgSent       map[string]int64
}

// NewMetrics creates a metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:   time.Now(),
		msgReceived: make(map[string]int64),
		msgSent:     make(map[string]int64),
	}
}

// RecordMessageReceived records an inbound message
func (m *Metrics) RecordMessageReceived(msgType string, size int) {
	m.MessagesReceived.Add(1)
	m.BytesReceived.Add(int64(size))

	m.msgCountersMu.Lock()
	m.msgReceived[msgType]++
	m.msgCountersMu.Unlock()
}

// RecordMessageSent records an outbound message
func (m *Metrics) RecordMessageSent(msgType string) {
	m.MessagesSent.Add(1)

	m.msgCountersMu.Lock()
	m.msgSent[msgType]++
	m.msgCountersMu.Unlock()
}

// MetricsSnapshot is a point-in-time view of all metrics
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	System SystemMetrics `json:"system"`

	Counters CounterMetrics `json:"counters"`

	MessagesByType MessageMetrics `json:"messages_by_type"`
}

// SystemMetrics contains runtime information
type SystemMetrics struct {
	GoVersion    string  `json:"go_version"`
	NumGoroutine int     `json:"num_goroutine"`
	MemAllocMB   float64 `json:"mem_alloc_mb"`
}

// CounterMetrics contains cumulative counters
type CounterMetrics struct {
	MessagesReceived    int64 `json:"messages_received"`
	MessagesSent        int64 `json:"messages_sent"`
	BytesReceived       int64 `json:"bytes_received"`
	ValidationFailures  int64 `json:"validation_failures"`
	HashRejections      int64 `json:"hash_rejections"`
	BindingsSuperseded  int64 `json:"bindings_superseded"`
	DroppedUnidentified int64 `json:"dropped_unidentified"`
	RateLimitDrops      int64 `json:"rate_limit_drops"`
	TrackerAnomalies    int64 `json:"tracker_anomalies"`
}

// MessageMetrics breaks down messages by type
type MessageMetrics struct {
	Received map[string]int64 `json:"received"`
	Sent     map[string]int64 `json:"sent"`
}

// Snapshot builds the point-in-time view. Registry and limiter counters
// are passed in by the daemon so this package stays free of core imports.
func (m *Metrics) Snapshot(counters CounterMetrics) MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	counters.MessagesReceived = m.MessagesReceived.Load()
	counters.MessagesSent = m.MessagesSent.Load()
	counters.BytesReceived = m.BytesReceived.Load()

	m.msgCountersMu.RLock()
	received := make(map[string]int64, len(m.msgReceived))
	for k, v := range m.msgReceived {
		received[k] = v
	}
	sent := make(map[string]int64, len(m.msgSent))
	for k, v := range m.msgSent {
		sent[k] = v
	}
	m.msgCountersMu.RUnlock()

	return MetricsSnapshot{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		System: SystemMetrics{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAllocMB:   float64(memStats.Alloc) / (1024 * 1024),
		},
		Counters:       counters,
		MessagesByType: MessageMetrics{Received: received, Sent: sent},
	}
}
