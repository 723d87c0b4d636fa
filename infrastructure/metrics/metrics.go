// Package metrics exports extension host activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/host"
)

const namespace = "exthost"

// Metrics implements the host's cache and call observers and a denial
// handler, recording each event as a Prometheus series.
type Metrics struct {
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheEvictions    prometheus.Counter
	cacheEvictedBytes prometheus.Counter
	cacheWeight       prometheus.Gauge
	calls             *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	denials           *prometheus.CounterVec
}

var (
	_ host.CacheObserver  = (*Metrics)(nil)
	_ host.CallObserver   = (*Metrics)(nil)
	_ ports.DenialHandler = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_cache_hits_total",
			Help:      "Total number of compiled module cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_cache_misses_total",
			Help:      "Total number of compiled module cache misses",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_cache_evictions_total",
			Help:      "Total number of compiled modules evicted from the cache",
		}),
		cacheEvictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_cache_evicted_bytes_total",
			Help:      "Total weight of compiled modules evicted from the cache",
		}),
		cacheWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "module_cache_weight_bytes",
			Help:      "Current weight of the compiled module cache",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extension_calls_total",
			Help:      "Total number of extension calls by outcome",
		}, []string{"extension", "operation", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extension_call_duration_seconds",
			Help:      "Duration of extension calls in seconds, including queue wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_denials_total",
			Help:      "Total number of privileged operations denied to extensions",
		}, []string{"extension", "kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.cacheEvictedBytes,
		m.cacheWeight,
		m.calls,
		m.callDuration,
		m.denials,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

func (m *Metrics) CacheEvicted(weight int64) {
	m.cacheEvictions.Inc()
	m.cacheEvictedBytes.Add(float64(weight))
}

func (m *Metrics) CacheWeight(weight int64) { m.cacheWeight.Set(float64(weight)) }

// CallFinished records one call outcome.
func (m *Metrics) CallFinished(extensionID, operation, outcome string, elapsed time.Duration) {
	m.calls.WithLabelValues(extensionID, operation, outcome).Inc()
	m.callDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// OnDenial counts a denied operation by kind.
func (m *Metrics) OnDenial(extensionID string, op entities.Operation, _ string) {
	kind := "unknown"
	if op != nil {
		kind = op.Kind()
	}
	m.denials.WithLabelValues(extensionID, kind).Inc()
}
