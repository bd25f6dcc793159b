package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/metrics"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// Throttle keeps the per-host last-access ledger that spaces requests to one origin
// Reserve and Stamp take the lock separately, so concurrent callers for the same host
// can both observe the old stamp; under contention the interval is approximate
type Throttle struct {
	ledger   map[string]time.Time // hostname -> last access time
	ledgerMu sync.Mutex
	interval time.Duration
	maxHosts int
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewThrottle creates a throttle enforcing interval between accesses to one host
// The ledger is cleared when it grows past maxHosts entries
func NewThrottle(interval time.Duration, maxHosts int, m *metrics.Metrics, log *logrus.Entry) *Throttle {
	if maxHosts <= 0 {
		maxHosts = 1000
	}
	return &Throttle{
		ledger:   make(map[string]time.Time),
		interval: interval,
		maxHosts: maxHosts,
		now:      time.Now,
		metrics:  m,
		log:      log,
	}
}

// Reserve returns how long the caller must wait before accessing host
// Computing a non-zero wait also prunes ledger entries older than the interval
func (t *Throttle) Reserve(host string) time.Duration {
	now := t.now()

	t.ledgerMu.Lock()
	last, exists := t.ledger[host]
	t.ledgerMu.Unlock()

	if !exists {
		return 0
	}
	wait := t.interval - now.Sub(last)
	if wait <= 0 {
		return 0
	}
	t.cleanup(now)
	return wait
}

// Stamp records now as the last access time for host
func (t *Throttle) Stamp(host string) {
	now := t.now()
	t.ledgerMu.Lock()
	if len(t.ledger) > t.maxHosts {
		t.ledger = make(map[string]time.Time)
	}
	t.ledger[host] = now
	t.ledgerMu.Unlock()
}

// Wait reserves, sleeps the returned wait, and stamps the ledger before returning
// The stamp happens before the caller's network access
// Returns ErrShutdownInProgress if ctx is done before or during the sleep
func (t *Throttle) Wait(ctx context.Context, host string) error {
	if ctx.Err() != nil {
		return utils.WrapErrorf(utils.ErrShutdownInProgress, "not waiting for host '%s'", host)
	}
	wait := t.Reserve(host)
	if wait > 0 {
		t.log.WithFields(logrus.Fields{"host": host, "sleep": wait}).Debug("Politeness delay")
		t.metrics.ObservePolitenessWait(wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return utils.WrapErrorf(utils.ErrShutdownInProgress, "interrupted politeness wait for host '%s'", host)
		}
	}
	t.Stamp(host)
	return nil
}

// Len returns the number of hosts in the ledger
func (t *Throttle) Len() int {
	t.ledgerMu.Lock()
	defer t.ledgerMu.Unlock()
	return len(t.ledger)
}

func (t *Throttle) cleanup(now time.Time) {
	t.ledgerMu.Lock()
	defer t.ledgerMu.Unlock()
	for host, last := range t.ledger {
		if now.Sub(last) > t.interval {
			delete(t.ledger, host)
		}
	}
}
