package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/crawl-loader/pkg/parse"
)

const (
	// maxRobotsSize bounds the robots.txt body read per host
	maxRobotsSize = 512 * 1024

	// robotsRetryInterval is how long a failed or 5xx robots.txt download is remembered
	robotsRetryInterval = 5 * time.Minute
)

// robotsEntry is the cached robots.txt of one host
type robotsEntry struct {
	data    *robotstxt.RobotsData // nil allows everything
	expires time.Time             // zero never expires
}

// RobotsPolicy fetches, caches, and evaluates robots.txt per host
type RobotsPolicy struct {
	client        *http.Client
	userAgent     string
	robotsCache   map[string]robotsEntry // scheme://host -> entry
	robotsCacheMu sync.Mutex
	inflight      singleflight.Group
	now           func() time.Time
	log           *logrus.Entry
}

// NewRobotsPolicy creates a policy using client for robots.txt downloads
func NewRobotsPolicy(client *http.Client, userAgent string, log *logrus.Entry) *RobotsPolicy {
	return &RobotsPolicy{
		client:      client,
		userAgent:   userAgent,
		robotsCache: make(map[string]robotsEntry),
		now:         time.Now,
		log:         log.WithField("component", "robots"),
	}
}

// Allowed reports whether the user agent may fetch u
// Returns true if robots.txt is missing or could not be fetched or parsed
func (rp *RobotsPolicy) Allowed(ctx context.Context, u *url.URL) bool {
	data := rp.robotsData(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), rp.userAgent)
}

func (rp *RobotsPolicy) robotsData(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host
	if data, ok := rp.cached(key); ok {
		return data
	}

	// Concurrent loads for one host share a single download that no single caller can cancel
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	downloadCtx := context.WithoutCancel(ctx)
	ch := rp.inflight.DoChan(key, func() (interface{}, error) {
		entry := rp.download(downloadCtx, robotsURL)
		rp.robotsCacheMu.Lock()
		rp.robotsCache[key] = entry
		rp.robotsCacheMu.Unlock()
		return entry.data, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*robotstxt.RobotsData)
	case <-ctx.Done():
		return nil
	}
}

// cached returns the unexpired entry for key
func (rp *RobotsPolicy) cached(key string) (*robotstxt.RobotsData, bool) {
	rp.robotsCacheMu.Lock()
	defer rp.robotsCacheMu.Unlock()

	entry, found := rp.robotsCache[key]
	if !found {
		return nil, false
	}
	if !entry.expires.IsZero() && !rp.now().Before(entry.expires) {
		delete(rp.robotsCache, key)
		return nil, false
	}
	return entry.data, true
}

// robotsReply is one robots.txt response
type robotsReply struct {
	status   int
	location string
	body     []byte
}

func (rp *RobotsPolicy) download(ctx context.Context, robotsURL *url.URL) robotsEntry {
	robotsLog := rp.log.WithField("robots_url", robotsURL.String())
	retryLater := rp.now().Add(robotsRetryInterval)

	reply, err := rp.get(ctx, robotsURL)
	if err == nil && isRedirectStatus(reply.status) {
		// A single hop covers the usual http to https or www moves
		target := parse.ResolveRedirect(robotsURL, reply.location)
		if target == nil {
			robotsLog.Debugf("robots.txt redirect without usable Location, allowing all")
			return robotsEntry{}
		}
		robotsLog.Debugf("Following robots.txt redirect to %s", target.Redacted())
		reply, err = rp.get(ctx, target)
	}
	if err != nil {
		robotsLog.Debugf("Fetching robots.txt failed, retrying after %s: %v", robotsRetryInterval, err)
		return robotsEntry{expires: retryLater}
	}

	switch {
	case isRedirectStatus(reply.status):
		robotsLog.Debugf("robots.txt redirected more than once, allowing all")
		return robotsEntry{}
	case reply.status >= 500 && reply.status < 600:
		// FromStatusAndBytes maps 5xx to disallow-all until the server recovers
		data, _ := robotstxt.FromStatusAndBytes(reply.status, nil)
		return robotsEntry{data: data, expires: retryLater}
	}

	// 4xx allows all
	data, err := robotstxt.FromStatusAndBytes(reply.status, reply.body)
	if err != nil {
		robotsLog.Debugf("Error parsing robots.txt: %v", err)
		return robotsEntry{expires: retryLater}
	}
	robotsLog.Debug("Fetched and parsed robots.txt")
	return robotsEntry{data: data}
}

func (rp *RobotsPolicy) get(ctx context.Context, robotsURL *url.URL) (*robotsReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rp.userAgent)

	resp, err := rp.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, err
	}
	return &robotsReply{status: resp.StatusCode, location: resp.Header.Get("Location"), body: body}, nil
}

func isRedirectStatus(status int) bool {
	return status >= 300 && status < 400
}
