// pkg/tenantdb/metrics.go
package tenantdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pool counters. The Registerer is injected so tests can
// instantiate isolated pools without fighting over the default registry.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	Evictions       prometheus.Counter
	Connects        prometheus.Counter
	ConnectFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "schoolcore", Subsystem: "tenantdb", Name: name, Help: help}
	}
	return &Metrics{
		CacheHits:       f.NewCounter(opts("cache_hits_total", "Connection cache hits.")),
		CacheMisses:     f.NewCounter(opts("cache_misses_total", "Connection cache misses.")),
		Evictions:       f.NewCounter(opts("evictions_total", "Handles evicted after failed liveness probes.")),
		Connects:        f.NewCounter(opts("connect_attempts_total", "Low-level store connection attempts.")),
		ConnectFailures: f.NewCounter(opts("connect_failures_total", "Failed store connection attempts.")),
	}
}

func (m *Metrics) hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}
func (m *Metrics) miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
func (m *Metrics) eviction() {
	if m != nil {
		m.Evictions.Inc()
	}
}
func (m *Metrics) connect() {
	if m != nil {
		m.Connects.Inc()
	}
}
func (m *Metrics) connectFailure() {
	if m != nil {
		m.ConnectFailures.Inc()
	}
}
