package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRobots(clock *fakeClock) *RobotsPolicy {
	rp := NewRobotsPolicy(testClient(), testConfig().UserAgent, testLogger())
	if clock != nil {
		rp.now = clock.Now
	}
	return rp
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

const disallowPrivate = "User-agent: *\nDisallow: /private\n"

func TestRobotsPolicy_FollowsOneRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved/robots.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/moved/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(disallowPrivate))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	rp := newTestRobots(nil)

	assert.False(t, rp.Allowed(context.Background(), mustParseURL(t, server.URL+"/private/doc")))
	assert.True(t, rp.Allowed(context.Background(), mustParseURL(t, server.URL+"/public")))
}

func TestRobotsPolicy_RedirectChainAllowsAll(t *testing.T) {
	finalHits := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		finalHits.Add(1)
		_, _ = w.Write([]byte(disallowPrivate))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	rp := newTestRobots(nil)

	assert.True(t, rp.Allowed(context.Background(), mustParseURL(t, server.URL+"/private/doc")))
	assert.Equal(t, int32(0), finalHits.Load())
}

func TestRobotsPolicy_TransportFailureRetriedAfterInterval(t *testing.T) {
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte(disallowPrivate))
	}))
	defer server.Close()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rp := newTestRobots(clock)
	private := mustParseURL(t, server.URL+"/private/doc")

	assert.True(t, rp.Allowed(context.Background(), private))
	assert.True(t, rp.Allowed(context.Background(), private))
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(robotsRetryInterval + time.Second)

	assert.False(t, rp.Allowed(context.Background(), private))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRobotsPolicy_ServerErrorRetriedAfterInterval(t *testing.T) {
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(disallowPrivate))
	}))
	defer server.Close()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rp := newTestRobots(clock)
	public := mustParseURL(t, server.URL+"/public")

	assert.False(t, rp.Allowed(context.Background(), public))

	clock.Advance(robotsRetryInterval)

	assert.True(t, rp.Allowed(context.Background(), public))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRobotsPolicy_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	release := make(chan struct{})
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(disallowPrivate))
	}))
	defer server.Close()

	rp := newTestRobots(nil)
	private := mustParseURL(t, server.URL+"/private/doc")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- rp.Allowed(ctx, private)
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting for robots.txt")
	}
	close(release)

	assert.False(t, rp.Allowed(context.Background(), private))
	assert.Equal(t, int32(1), hits.Load())
}
