package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label constants for metrics.
const (
	LabelCategory = "category"
	LabelProtocol = "protocol"
	LabelResult   = "result"
)

// Cache lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// TrafficCategoryCrawler is the traffic category for every fetched byte
const TrafficCategoryCrawler = "CRAWLER"

// Metrics holds the loader's Prometheus collectors
// All methods are safe to call on a nil *Metrics
type Metrics struct {
	trafficBytes   *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	failures       *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	politenessWait prometheus.Histogram
	coalesceWaits  *prometheus.CounterVec
	inFlight       prometheus.Gauge
}

// New creates the loader metrics and registers them with registry.
// If registry is nil, metrics will be created but not registered (useful for testing).
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		trafficBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loader",
				Name:      "traffic_bytes_total",
				Help:      "Bytes fetched from remote sources by traffic category",
			},
			[]string{LabelCategory},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loader",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache store lookups by result",
			},
			[]string{LabelResult},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loader",
				Name:      "failures_total",
				Help:      "Fetch failures by protocol and error category",
			},
			[]string{LabelProtocol, LabelCategory},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "loader",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of network fetches by protocol",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{LabelProtocol},
		),
		politenessWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "loader",
				Subsystem: "politeness",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for the per-host politeness interval",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		coalesceWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loader",
				Subsystem: "coalesce",
				Name:      "waits_total",
				Help:      "Requests that waited for a concurrent load of the same URL, by outcome",
			},
			[]string{LabelResult}, // released, timeout
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "loader",
				Name:      "loads_in_flight",
				Help:      "Loads currently being dispatched",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.trafficBytes,
			m.cacheLookups,
			m.failures,
			m.fetchDuration,
			m.politenessWait,
			m.coalesceWaits,
			m.inFlight,
		)
	}
	return m
}

// AddBytes accounts n fetched bytes to a traffic category
func (m *Metrics) AddBytes(category string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.trafficBytes.WithLabelValues(category).Add(float64(n))
}

// ObserveCacheLookup counts one cache lookup
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveFailure counts one journaled failure
func (m *Metrics) ObserveFailure(protocol, category string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(protocol, category).Inc()
}

// ObserveFetch records the duration of one network round trip
func (m *Metrics) ObserveFetch(protocol string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

// ObservePolitenessWait records a politeness delay
func (m *Metrics) ObservePolitenessWait(d time.Duration) {
	if m == nil {
		return
	}
	m.politenessWait.Observe(d.Seconds())
}

// ObserveCoalesceWait counts a wait on a concurrent load; timedOut is true when the wait expired
func (m *Metrics) ObserveCoalesceWait(timedOut bool) {
	if m == nil {
		return
	}
	result := "released"
	if timedOut {
		result = "timeout"
	}
	m.coalesceWaits.WithLabelValues(result).Inc()
}

// LoadStarted and LoadFinished bracket one dispatcher load
func (m *Metrics) LoadStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) LoadFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
