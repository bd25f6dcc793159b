package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/blacklist"
	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/metrics"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/storage"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// Adapter fetches resources for one family of protocols
type Adapter interface {
	// Protocols lists the URL schemes served by the adapter
	Protocols() []string

	// Fetch retrieves the resource named by req.URL
	// Rejections are journaled before the error is returned
	Fetch(ctx context.Context, req *models.Request, opts FetchOptions) (*models.Response, error)
}

// FetchOptions carries the per-load limits decided by the dispatcher
type FetchOptions struct {
	MaxFileSize    int64 // 0 = unlimited
	CheckBlacklist bool
	Profile        *models.CrawlProfile // nil if the request's profile is unknown
}

// Blacklist is the matcher consulted when blacklist checking is requested
type Blacklist interface {
	IsListed(category, host, path string) bool
}

// Traffic accounts transferred bytes per category
type Traffic interface {
	AddBytes(category string, n int64)
}

// Deps bundles the collaborators shared by all adapters
type Deps struct {
	Journal   storage.FailureJournal
	Blacklist Blacklist // optional
	Traffic   Traffic   // optional
	Metrics   *metrics.Metrics
	Log       *logrus.Entry
}

// attempt is one network round trip of a load, as reported to the journal
type attempt struct {
	url    string
	status int
}

// guard implements the checks and bookkeeping every adapter shares
type guard struct {
	protocol string
	deps     Deps
	log      *logrus.Entry
}

func newGuard(protocol string, deps Deps) guard {
	return guard{
		protocol: protocol,
		deps:     deps,
		log:      deps.Log.WithField("adapter", protocol),
	}
}

// checkHost rejects URLs whose host is missing or not a plausible host name
func (g *guard) checkHost(u *url.URL) error {
	host := u.Hostname()
	if len(host) < 2 || !parse.IsValidHost(host) {
		return utils.WrapErrorf(utils.ErrMalformedHost, "host '%s' in '%s' is not valid", host, u.Redacted())
	}
	return nil
}

// checkBlacklist rejects URLs listed in the crawler blacklist when checking is requested
func (g *guard) checkBlacklist(u *url.URL, check bool) error {
	if !check || g.deps.Blacklist == nil {
		return nil
	}
	if g.deps.Blacklist.IsListed(blacklist.CategoryCrawler, u.Hostname(), u.EscapedPath()) {
		return utils.WrapErrorf(utils.ErrBlacklisted, "url '%s' is in the crawler blacklist", u.Redacted())
	}
	return nil
}

// checkSize rejects content larger than maxSize; a size or limit <= 0 is not checked
func (g *guard) checkSize(u *url.URL, size, maxSize int64) error {
	if maxSize > 0 && size > maxSize {
		return utils.WrapErrorf(utils.ErrTooLarge, "'%s' is %d bytes, limit is %d", u.Redacted(), size, maxSize)
	}
	return nil
}

// account adds transferred bytes to the crawler traffic category
func (g *guard) account(n int64) {
	if g.deps.Traffic != nil {
		g.deps.Traffic.AddBytes(metrics.TrafficCategoryCrawler, n)
	}
}

// reject journals err once per network attempt (or once if none was made) and returns it
func (g *guard) reject(req *models.Request, attempts []attempt, err error) error {
	if len(attempts) == 0 {
		attempts = []attempt{{url: req.URL.String()}}
	}
	category := utils.CategorizeError(err)
	now := time.Now()

	for i, a := range attempts {
		record := &models.FailureRecord{
			URL:         a.url,
			InitiatorID: req.InitiatorID,
			Timestamp:   now,
			Attempt:     i + 1,
			Reason:      err.Error(),
			Category:    category,
			HTTPStatus:  a.status,
		}
		if g.deps.Journal != nil {
			if jerr := g.deps.Journal.Append(record); jerr != nil {
				g.log.WithField("url", a.url).Errorf("Failed to journal rejection: %v", jerr)
			}
		}
	}
	g.deps.Metrics.ObserveFailure(g.protocol, category)

	entry := g.log.WithFields(logrus.Fields{
		"url":      req.URL.String(),
		"category": category,
		"attempts": len(attempts),
	})
	if errors.Is(err, utils.ErrShutdownInProgress) || errors.Is(err, utils.ErrBlacklisted) {
		entry.Info("Load rejected")
	} else {
		entry.Warnf("Load rejected: %v", err)
	}
	return err
}

// DefaultAdapters returns one adapter per supported protocol family
func DefaultAdapters(cfg *config.AppConfig, client *http.Client, deps Deps, httpOpts ...HTTPOption) []Adapter {
	return []Adapter{
		NewHTTPAdapter(client, cfg, deps, httpOpts...),
		NewFTPAdapter(cfg, deps),
		NewSMBAdapter(cfg, deps),
		NewFileAdapter(cfg, deps),
	}
}
