package ensemble

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    runs     *prometheus.CounterVec
//	    duration *prometheus.HistogramVec
//	}
//
//	func (p *PrometheusCollector) RecordRun(algorithm string, items, noise int, d time.Duration, err error) {
//	    p.runs.WithLabelValues(algorithm).Inc()
//	    p.duration.WithLabelValues(algorithm).Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordRun is called after each clustering invocation.
	// items is the number of rows clustered, noise the number labelled as
	// noise, duration the time spent in the routine and err nil on success.
	RecordRun(algorithm string, items, noise int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRun(string, int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RunCount      atomic.Int64
	RunErrors     atomic.Int64
	RunTotalNanos atomic.Int64
	ItemsTotal    atomic.Int64
	NoiseTotal    atomic.Int64

	perAlgorithm sync.Map // string -> *atomic.Int64
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(algorithm string, items, noise int, duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	} else {
		b.ItemsTotal.Add(int64(items))
		b.NoiseTotal.Add(int64(noise))
	}

	c, _ := b.perAlgorithm.LoadOrStore(algorithm, new(atomic.Int64))
	c.(*atomic.Int64).Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		RunCount:        b.RunCount.Load(),
		RunErrors:       b.RunErrors.Load(),
		RunAvgNanos:     b.getAvgRunNanos(),
		ItemsTotal:      b.ItemsTotal.Load(),
		NoiseTotal:      b.NoiseTotal.Load(),
		RunsByAlgorithm: make(map[string]int64),
	}
	b.perAlgorithm.Range(func(k, v any) bool {
		stats.RunsByAlgorithm[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return stats
}

func (b *BasicMetricsCollector) getAvgRunNanos() int64 {
	count := b.RunCount.Load()
	if count == 0 {
		return 0
	}
	return b.RunTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RunCount        int64
	RunErrors       int64
	RunAvgNanos     int64
	ItemsTotal      int64
	NoiseTotal      int64
	RunsByAlgorithm map[string]int64
}
