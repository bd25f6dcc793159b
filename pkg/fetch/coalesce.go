package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/metrics"
)

// Gate is the in-flight marker of one load; it is closed when that load leaves
type Gate chan struct{}

// Coalescer collapses concurrent loads of the same URL on a best-effort basis
// A caller finding a gate waits for it to close, at most maxWait, then proceeds anyway.
// Lookup and insert are separate critical sections: two callers that both find no gate
// both become first and both fetch
type Coalescer struct {
	gates   map[string]Gate
	gatesMu sync.Mutex
	maxWait time.Duration
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewCoalescer creates a registry whose waits end after maxWait
func NewCoalescer(maxWait time.Duration, m *metrics.Metrics, log *logrus.Entry) *Coalescer {
	return &Coalescer{
		gates:   make(map[string]Gate),
		maxWait: maxWait,
		metrics: m,
		log:     log,
	}
}

// Enter waits for any in-flight load of key, then installs a new gate for this caller
// Waiting never fails: timeouts and cancellation end the wait and the caller proceeds
// The returned gate must be passed to Leave
func (c *Coalescer) Enter(ctx context.Context, key string) Gate {
	c.gatesMu.Lock()
	existing, inFlight := c.gates[key]
	c.gatesMu.Unlock()

	if inFlight {
		timer := time.NewTimer(c.maxWait)
		select {
		case <-existing:
			c.metrics.ObserveCoalesceWait(false)
		case <-timer.C:
			c.log.WithField("url", key).Debugf("Concurrent load still running after %v, proceeding", c.maxWait)
			c.metrics.ObserveCoalesceWait(true)
		case <-ctx.Done():
		}
		timer.Stop()
	}

	gate := make(Gate)
	c.gatesMu.Lock()
	c.gates[key] = gate
	c.gatesMu.Unlock()
	return gate
}

// Leave removes the caller's gate and releases everyone waiting on it at once
func (c *Coalescer) Leave(key string, gate Gate) {
	c.gatesMu.Lock()
	if c.gates[key] == gate {
		delete(c.gates, key)
	}
	c.gatesMu.Unlock()
	close(gate)
}

// InFlight returns the number of URLs with a registered gate
func (c *Coalescer) InFlight() int {
	c.gatesMu.Lock()
	defer c.gatesMu.Unlock()
	return len(c.gates)
}
