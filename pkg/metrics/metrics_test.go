package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	require.NotNil(t, m)

	m.AddBytes(TrafficCategoryCrawler, 1)
	m.ObserveCacheLookup(true)
	m.ObserveFailure("http", "Reject_TooLarge")
	m.ObserveFetch("http", time.Millisecond)
	m.ObservePolitenessWait(time.Millisecond)
	m.ObserveCoalesceWait(false)
	m.LoadStarted()

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestMetrics_AddBytes(t *testing.T) {
	m := New(nil)

	m.AddBytes(TrafficCategoryCrawler, 100)
	m.AddBytes(TrafficCategoryCrawler, 50)
	m.AddBytes(TrafficCategoryCrawler, 0)
	m.AddBytes(TrafficCategoryCrawler, -10)

	assert.Equal(t, float64(150), testutil.ToFloat64(m.trafficBytes.WithLabelValues(TrafficCategoryCrawler)))
}

func TestMetrics_CacheLookups(t *testing.T) {
	m := New(nil)

	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheLookups.WithLabelValues(ResultHit)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheLookups.WithLabelValues(ResultMiss)))
}

func TestMetrics_FailuresAndInFlight(t *testing.T) {
	m := New(nil)

	m.ObserveFailure("ftp", "Reject_TooLarge")
	m.ObserveFailure("ftp", "Reject_TooLarge")
	m.LoadStarted()
	m.LoadStarted()
	m.LoadFinished()
	m.ObserveCoalesceWait(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.failures.WithLabelValues("ftp", "Reject_TooLarge")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.coalesceWaits.WithLabelValues("timeout")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.AddBytes(TrafficCategoryCrawler, 10)
		m.ObserveCacheLookup(true)
		m.ObserveFailure("http", "x")
		m.ObserveFetch("http", time.Second)
		m.ObservePolitenessWait(time.Second)
		m.ObserveCoalesceWait(true)
		m.LoadStarted()
		m.LoadFinished()
	})
}
