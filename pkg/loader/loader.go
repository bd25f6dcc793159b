package loader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/fetch"
	"github.com/Sriram-PR/crawl-loader/pkg/metrics"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/storage"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// ProfileResolver resolves crawl profile handles
type ProfileResolver interface {
	Resolve(handle string) (*models.CrawlProfile, bool)
}

// Options carries the optional collaborators of a Loader
type Options struct {
	Cache     storage.CacheStore     // nil disables cache lookups and write-back
	Profiles  ProfileResolver        // nil resolves no profile
	Journal   storage.FailureJournal // receives the dispatcher's own rejections
	Metrics   *metrics.Metrics
	Throttle  *fetch.Throttle  // nil builds one from the config
	Coalescer *fetch.Coalescer // nil builds one from the config
}

// Loader dispatches fetch requests: cache lookup, politeness, coalescing, adapter, write-back
// Safe for concurrent use by any number of crawl workers
type Loader struct {
	cfg       *config.AppConfig
	log       *logrus.Entry
	adapters  map[string]fetch.Adapter // scheme -> adapter
	cache     storage.CacheStore
	profiles  ProfileResolver
	journal   storage.FailureJournal
	metrics   *metrics.Metrics
	throttle  *fetch.Throttle
	coalescer *fetch.Coalescer

	// lookupHost resolves names for the loopback guard
	lookupHost func(ctx context.Context, host string) ([]string, error)

	cacheLookups atomic.Int64
	cacheHits    atomic.Int64
}

// New creates a Loader serving the protocols of the given adapters
// Two adapters claiming the same protocol is a configuration error
func New(cfg *config.AppConfig, adapters []fetch.Adapter, opts Options, baseLogger *logrus.Entry) (*Loader, error) {
	log := baseLogger.WithField("component", "loader")

	l := &Loader{
		cfg:        cfg,
		log:        log,
		adapters:   make(map[string]fetch.Adapter),
		cache:      opts.Cache,
		profiles:   opts.Profiles,
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		throttle:   opts.Throttle,
		coalescer:  opts.Coalescer,
		lookupHost: net.DefaultResolver.LookupHost,
	}
	for _, a := range adapters {
		for _, p := range a.Protocols() {
			p = strings.ToLower(p)
			if _, exists := l.adapters[p]; exists {
				return nil, fmt.Errorf("%w: protocol '%s' is served by more than one adapter", utils.ErrConfigValidation, p)
			}
			l.adapters[p] = a
		}
	}
	if l.throttle == nil {
		l.throttle = fetch.NewThrottle(cfg.PolitenessInterval, cfg.LedgerMaxHosts, opts.Metrics, log.WithField("component", "throttle"))
	}
	if l.coalescer == nil {
		l.coalescer = fetch.NewCoalescer(cfg.CoalesceWait, opts.Metrics, log.WithField("component", "coalescer"))
	}

	log.Infof("Loader ready for protocols: %s", strings.Join(l.SupportedProtocols(), ", "))
	return l, nil
}

// Load fetches req according to strategy
// Adapter failures are journaled by the adapter; the dispatcher journals its own rejections
func (l *Loader) Load(ctx context.Context, req *models.Request, strategy models.CacheStrategy, maxFileSize int64, checkBlacklist bool) (*models.Response, error) {
	if req == nil || req.URL == nil {
		return nil, utils.WrapErrorf(utils.ErrMalformedHost, "request without URL")
	}
	l.metrics.LoadStarted()
	defer l.metrics.LoadFinished()

	key := parse.NormalizeURL(req.URL)
	gate := l.coalescer.Enter(ctx, key)
	defer l.coalescer.Leave(key, gate)

	protocol := strings.ToLower(req.Protocol())
	host := req.URL.Hostname()
	local := parse.IsLocal(req.URL)
	reqLog := l.log.WithFields(logrus.Fields{"url": req.URL.String(), "strategy": strategy})

	if protocol == "file" || protocol == "smb" {
		strategy = models.CacheStrategyNoCache
	}

	if protocol != "file" && !l.cfg.AllowLoopbackFetch && l.isLoopback(ctx, host) {
		return nil, l.reject(req, protocol, utils.WrapErrorf(utils.ErrSecurityViolation,
			"host '%s' of '%s' is the local machine", host, req.URL.Redacted()))
	}

	profile := l.resolveProfile(req.ProfileHandle)

	if strategy != models.CacheStrategyNoCache {
		if !local {
			if cached := l.cachedResponse(req, key, profile, strategy, reqLog); cached != nil {
				return cached, nil
			}
		}
		if strategy == models.CacheStrategyCacheOnly {
			return nil, l.reject(req, protocol, utils.WrapErrorf(utils.ErrOfflineOnly,
				"no cached copy of '%s'", req.URL.Redacted()))
		}
	}

	adapter, ok := l.adapters[protocol]
	if !ok {
		return nil, l.reject(req, protocol, utils.WrapErrorf(utils.ErrUnsupportedProtocol,
			"no adapter for protocol '%s'", protocol))
	}

	if !local {
		if err := l.throttle.Wait(ctx, host); err != nil {
			return nil, l.reject(req, protocol, err)
		}
	}

	resp, err := adapter.Fetch(ctx, req, fetch.FetchOptions{
		MaxFileSize:    maxFileSize,
		CheckBlacklist: checkBlacklist,
		Profile:        profile,
	})
	if err != nil {
		return nil, err
	}
	if !local {
		l.writeBack(resp, reqLog)
	}
	return resp, nil
}

// cachedResponse returns a cached copy usable under strategy, or nil
func (l *Loader) cachedResponse(req *models.Request, key string, profile *models.CrawlProfile, strategy models.CacheStrategy, reqLog *logrus.Entry) *models.Response {
	if l.cache == nil {
		l.countLookup(false)
		return nil
	}
	entry, found, err := l.cache.Lookup(utils.URLHash(key))
	if err != nil {
		reqLog.Warnf("Cache lookup failed, treating as miss: %v", err)
	}
	if err != nil || !found {
		l.countLookup(false)
		return nil
	}

	resp := models.NewResponse(req, entry.Header.RequestHeader, entry.Header.ResponseHeader, entry.Header.StatusCode, profile, entry.Content)
	resp.FromCache = true

	if strategy == models.CacheStrategyIfFresh && !resp.IsFreshForProxy() {
		reqLog.Debug("Cached copy is stale, fetching")
		l.countLookup(false)
		return nil
	}
	reqLog.Debug("Serving from cache")
	l.countLookup(true)
	return resp
}

// writeBack stores a fetched response when its profile asks for it and nothing vetoes it
// A failed write is logged; the response is still returned
func (l *Loader) writeBack(resp *models.Response, reqLog *logrus.Entry) {
	if l.cache == nil || resp.Content == nil || resp.Profile == nil || !resp.Profile.StoreHTCache {
		return
	}
	if veto := resp.StorageVeto(); veto != "" {
		reqLog.Debugf("Not caching: %s", veto)
		return
	}
	header := storage.CacheHeader{
		StatusCode:     resp.StatusCode,
		RequestHeader:  resp.RequestHeader,
		ResponseHeader: resp.ResponseHeader,
	}
	if err := l.cache.Store(parse.NormalizeURL(resp.URL()), header, resp.Content); err != nil {
		reqLog.WithField("category", utils.CategorizeError(err)).Warnf("Cache write failed: %v", err)
	}
}

// isLoopback reports whether host is, or resolves to, the local machine
// A failed lookup is not a loopback; the adapter reports the unreachable host
func (l *Loader) isLoopback(ctx context.Context, host string) bool {
	if parse.IsLoopbackHost(host) {
		return true
	}
	if host == "" || net.ParseIP(host) != nil {
		return false
	}
	addrs, err := l.lookupHost(ctx, host)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
			return true
		}
	}
	return false
}

func (l *Loader) resolveProfile(handle string) *models.CrawlProfile {
	if l.profiles == nil {
		return nil
	}
	profile, ok := l.profiles.Resolve(handle)
	if !ok {
		return nil
	}
	return profile
}

// reject journals a failure raised by the dispatcher itself and returns it
func (l *Loader) reject(req *models.Request, protocol string, err error) error {
	category := utils.CategorizeError(err)
	if l.journal != nil {
		record := &models.FailureRecord{
			URL:         req.URL.String(),
			InitiatorID: req.InitiatorID,
			Timestamp:   time.Now(),
			Attempt:     1,
			Reason:      err.Error(),
			Category:    category,
		}
		if jerr := l.journal.Append(record); jerr != nil {
			l.log.WithField("url", record.URL).Errorf("Failed to journal rejection: %v", jerr)
		}
	}
	l.metrics.ObserveFailure(protocol, category)

	entry := l.log.WithFields(logrus.Fields{"url": req.URL.String(), "category": category})
	if errors.Is(err, utils.ErrOfflineOnly) || errors.Is(err, utils.ErrShutdownInProgress) {
		entry.Info("Load rejected")
	} else {
		entry.Warnf("Load rejected: %v", err)
	}
	return err
}

func (l *Loader) countLookup(hit bool) {
	l.cacheLookups.Add(1)
	if hit {
		l.cacheHits.Add(1)
	}
	l.metrics.ObserveCacheLookup(hit)
}

// IsSupportedProtocol reports whether an adapter serves protocol
func (l *Loader) IsSupportedProtocol(protocol string) bool {
	_, ok := l.adapters[strings.ToLower(protocol)]
	return ok
}

// SupportedProtocols lists the served protocols in sorted order
func (l *Loader) SupportedProtocols() []string {
	protocols := make([]string, 0, len(l.adapters))
	for p := range l.adapters {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	return protocols
}

// ProtocolMaxFileSize returns the configured download limit for the scheme of u
func (l *Loader) ProtocolMaxFileSize(u *url.URL) int64 {
	if u == nil {
		return l.cfg.MaxFileSizeFor("http")
	}
	return l.cfg.MaxFileSizeFor(strings.ToLower(u.Scheme))
}
