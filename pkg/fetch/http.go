package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/storage"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// HTTPAdapter fetches http and https resources, following redirects one hop at a time
type HTTPAdapter struct {
	client   *http.Client
	cfg      *config.AppConfig
	index    storage.IndexPresence // optional; enables duplicate detection and Referer resolution
	resolver NameResolver          // optional
	robots   *RobotsPolicy         // optional
	guard
}

// HTTPOption configures optional collaborators of the HTTP adapter
type HTTPOption func(*HTTPAdapter)

// WithIndex sets the index presence used for duplicate redirects and Referer headers
func WithIndex(index storage.IndexPresence) HTTPOption {
	return func(a *HTTPAdapter) { a.index = index }
}

// WithNameResolver sets the alternate name resolver consulted before connecting
func WithNameResolver(r NameResolver) HTTPOption {
	return func(a *HTTPAdapter) { a.resolver = r }
}

// WithRobots enables the robots.txt pre-check
func WithRobots(rp *RobotsPolicy) HTTPOption {
	return func(a *HTTPAdapter) { a.robots = rp }
}

// NewHTTPAdapter creates the adapter for http and https
func NewHTTPAdapter(client *http.Client, cfg *config.AppConfig, deps Deps, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		client: client,
		cfg:    cfg,
		guard:  newGuard("http", deps),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Protocols implements Adapter
func (a *HTTPAdapter) Protocols() []string {
	return []string{"http", "https"}
}

// Fetch implements Adapter
// Each loop iteration is one hop: validate, fetch, then succeed, redirect, or reject.
// Following a redirect replaces req.URL and spends one unit of req.RedirectsRemaining
func (a *HTTPAdapter) Fetch(ctx context.Context, req *models.Request, opts FetchOptions) (*models.Response, error) {
	var attempts []attempt

	for {
		if req.RedirectsRemaining < 0 {
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrTooManyRedirects,
				"giving up on '%s' after %d redirects", req.URL.Redacted(), len(attempts)))
		}
		if err := a.checkHost(req.URL); err != nil {
			return nil, a.reject(req, attempts, err)
		}
		if err := a.checkBlacklist(req.URL, opts.CheckBlacklist); err != nil {
			return nil, a.reject(req, attempts, err)
		}
		if a.robots != nil && !a.robots.Allowed(ctx, req.URL) {
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrBlacklisted,
				"'%s' is disallowed by robots.txt", req.URL.Redacted()))
		}

		hop := attempt{url: req.URL.String()}
		outbound, err := a.newRequest(ctx, req, opts.Profile)
		if err != nil {
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrMalformedHost, "building request for '%s': %v", req.URL.Redacted(), err))
		}

		reqLog := a.log.WithFields(logrus.Fields{"url": hop.url, "attempt": len(attempts) + 1})
		start := time.Now()
		resp, err := a.client.Do(outbound)
		if err != nil {
			attempts = append(attempts, hop)
			if ctx.Err() != nil {
				return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrShutdownInProgress, "fetch of '%s' interrupted: %v", req.URL.Redacted(), err))
			}
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrTransport, "fetching '%s': %v", req.URL.Redacted(), err))
		}

		hop.status = resp.StatusCode
		attempts = append(attempts, hop)
		content, readErr := a.readBody(resp, req.URL, opts.MaxFileSize)
		a.deps.Metrics.ObserveFetch(req.Protocol(), time.Since(start))
		reqLog = reqLog.WithField("status_code", resp.StatusCode)

		switch status := resp.StatusCode; {
		case status == http.StatusOK || status == http.StatusNonAuthoritativeInfo:
			if readErr != nil {
				return nil, a.reject(req, attempts, readErr)
			}
			if err := a.checkSize(req.URL, int64(len(content)), opts.MaxFileSize); err != nil {
				return nil, a.reject(req, attempts, err)
			}
			a.account(int64(len(content)))
			reqLog.Debugf("Fetched %d bytes", len(content))
			return models.NewResponse(req, outbound.Header.Clone(), resp.Header, status, opts.Profile, content), nil

		case status >= 300 && status <= 309:
			location := strings.TrimSpace(resp.Header.Get("Location"))
			if location == "" {
				return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrEmptyRedirect,
					"status %d from '%s' without Location header", status, req.URL.Redacted()))
			}
			target := parse.ResolveRedirect(req.URL, location)
			if target == nil {
				return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrEmptyRedirect,
					"status %d from '%s' with unusable Location '%s'", status, req.URL.Redacted(), location))
			}
			if ctx.Err() != nil {
				return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrShutdownInProgress,
					"not following redirect from '%s'", req.URL.Redacted()))
			}
			if err := a.checkDuplicate(target); err != nil {
				return nil, a.reject(req, attempts, err)
			}
			reqLog.Debugf("Following redirect to %s", target.Redacted())
			req.RedirectTo(target)

		case readErr != nil:
			return nil, a.reject(req, attempts, readErr)

		case status >= 200 && status < 300 && len(content) == 0:
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrEmptyBody,
				"status %d from '%s' carried no content", status, req.URL.Redacted()))

		default:
			return nil, a.reject(req, attempts, utils.WrapErrorf(utils.ErrUnexpectedStatus,
				"status %d from '%s'", status, req.URL.Redacted()))
		}
	}
}

// newRequest builds the outbound GET for req, applying aliases and profile headers
func (a *HTTPAdapter) newRequest(ctx context.Context, req *models.Request, profile *models.CrawlProfile) (*http.Request, error) {
	target := *req.URL
	target.Fragment = ""
	if a.resolver != nil {
		if alias, ok := a.resolver.Resolve(target.Hostname()); ok {
			if port := target.Port(); port != "" {
				alias = net.JoinHostPort(alias, port)
			}
			target.Host = alias
		}
	}

	outbound, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	acceptLanguage, acceptCharset, acceptEncoding := a.cfg.AcceptLanguage, a.cfg.AcceptCharset, a.cfg.AcceptEncoding
	if profile != nil {
		acceptLanguage = firstNonEmpty(profile.AcceptLanguage, acceptLanguage)
		acceptCharset = firstNonEmpty(profile.AcceptCharset, acceptCharset)
		acceptEncoding = firstNonEmpty(profile.AcceptEncoding, acceptEncoding)
	}
	outbound.Header.Set("User-Agent", a.cfg.UserAgent)
	outbound.Header.Set("Accept", "*/*")
	outbound.Header.Set("Accept-Language", acceptLanguage)
	outbound.Header.Set("Accept-Charset", acceptCharset)
	outbound.Header.Set("Accept-Encoding", acceptEncoding)

	if referer := a.referer(req.ReferrerID); referer != "" {
		outbound.Header.Set("Referer", referer)
	}
	return outbound, nil
}

func (a *HTTPAdapter) referer(referrerID string) string {
	if referrerID == "" || a.index == nil {
		return ""
	}
	u, found, err := a.index.URL(referrerID)
	if err != nil {
		a.log.Debugf("Referrer lookup for %s failed: %v", referrerID, err)
		return ""
	}
	if !found {
		return ""
	}
	return u
}

// checkDuplicate rejects a redirect target that is already in the index
func (a *HTTPAdapter) checkDuplicate(target *url.URL) error {
	if a.index == nil {
		return nil
	}
	segment, found, err := a.index.Exists(utils.URLHash(parse.NormalizeURL(target)))
	if err != nil {
		a.log.Warnf("Index lookup for redirect target '%s' failed: %v", target.Redacted(), err)
		return nil
	}
	if found {
		return utils.WrapErrorf(utils.ErrDuplicateContent, "redirect target '%s' is already indexed in %s", target.Redacted(), segment)
	}
	return nil
}

// readBody reads at most maxSize+1 decoded bytes and closes the body
// A declared Content-Length above maxSize is rejected without reading
func (a *HTTPAdapter) readBody(resp *http.Response, u *url.URL, maxSize int64) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNonAuthoritativeInfo {
		if resp.Header.Get("Content-Encoding") == "" {
			if err := a.checkSize(u, resp.ContentLength, maxSize); err != nil {
				return nil, err
			}
		}
	}

	reader, err := decodedReader(resp)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrTransport, "decoding body of '%s': %v", u.Redacted(), err)
	}
	defer reader.Close()

	var limited io.Reader = reader
	if maxSize > 0 {
		limited = io.LimitReader(reader, maxSize+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(limited); err != nil {
		return nil, utils.WrapErrorf(utils.ErrTransport, "reading body of '%s': %v", u.Redacted(), err)
	}

	// Decoded content no longer matches the transfer headers
	if resp.Header.Get("Content-Encoding") != "" {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}
	return buf.Bytes(), nil
}

// decodedReader undoes gzip or deflate content encoding; other encodings pass through
func decodedReader(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if errors.Is(err, io.EOF) {
			// An empty body has no gzip header
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return zr, err
	case "deflate":
		// Servers send either zlib-wrapped or raw deflate streams
		peek := make([]byte, 2)
		n, err := io.ReadFull(resp.Body, peek)
		if errors.Is(err, io.EOF) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		body := io.MultiReader(bytes.NewReader(peek[:n]), resp.Body)
		if n == 2 && (uint16(peek[0])<<8|uint16(peek[1]))%31 == 0 && peek[0]&0x0f == 8 {
			return zlib.NewReader(body)
		}
		return flate.NewReader(body), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
