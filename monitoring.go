package medvault

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting operational metrics
// around the crypto and authorization paths. The KDF dominates latency, so
// timings matter more here than in most libraries.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordTiming(name string, duration time.Duration, tags map[string]string)

	// Flush any buffered metrics
	Flush() error
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector.
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) IncrementCounter(name string, tags map[string]string)               {}
func (n *NoOpMetricsCollector) RecordTiming(name string, d time.Duration, tags map[string]string)  {}
func (n *NoOpMetricsCollector) Flush() error                                                       { return nil }

// InMemoryMetricsCollector is a simple in-memory implementation for testing
// and development.
type InMemoryMetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string][]time.Duration
}

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		counters: make(map[string]int64),
		timings:  make(map[string][]time.Duration),
	}
}

func (c *InMemoryMetricsCollector) IncrementCounter(name string, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
}

func (c *InMemoryMetricsCollector) RecordTiming(name string, d time.Duration, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings[name] = append(c.timings[name], d)
}

func (c *InMemoryMetricsCollector) Flush() error { return nil }

// Counter returns the current value of a counter.
func (c *InMemoryMetricsCollector) Counter(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[name]
}

// Timings returns recorded durations for a metric.
func (c *InMemoryMetricsCollector) Timings(name string) []time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]time.Duration, len(c.timings[name]))
	copy(out, c.timings[name])
	return out
}
