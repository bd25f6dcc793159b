package models

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// MaxCacheableSize is the largest body written through to the cache store
const MaxCacheableSize = 10 * 1024 * 1024

// Extensions treated as dynamic pages whose copies are never fresh
var cgiExtensions = map[string]bool{
	"cgi": true, "pl": true, "php": true, "php3": true, "php4": true, "php5": true,
	"asp": true, "aspx": true, "jsp": true, "py": true, "exe": true,
}

// Response is a fetched (or cached) resource together with the request that produced it
type Response struct {
	Request        *Request
	RequestHeader  http.Header
	ResponseHeader http.Header
	StatusCode     int
	Profile        *CrawlProfile // nil when the profile handle could not be resolved
	Content        []byte        // nil only transiently, before the adapter fills it
	FromCache      bool
	Indexable      bool // false for synthesized directory listings
}

// NewResponse wraps a fetch result; headers are never nil afterwards
func NewResponse(req *Request, requestHeader, responseHeader http.Header, statusCode int, profile *CrawlProfile, content []byte) *Response {
	if requestHeader == nil {
		requestHeader = http.Header{}
	}
	if responseHeader == nil {
		responseHeader = http.Header{}
	}
	return &Response{
		Request:        req,
		RequestHeader:  requestHeader,
		ResponseHeader: responseHeader,
		StatusCode:     statusCode,
		Profile:        profile,
		Content:        content,
		Indexable:      true,
	}
}

// URL returns the URL of the request that produced this response
func (r *Response) URL() *url.URL {
	if r.Request == nil {
		return nil
	}
	return r.Request.URL
}

// Size returns the content length in bytes
func (r *Response) Size() int64 {
	return int64(len(r.Content))
}

// MimeType returns the media type of the Content-Type header without parameters
func (r *Response) MimeType() string {
	ct := r.ResponseHeader.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mediaType
}

// StorageVeto returns a reason why the response must not be written to the cache, or "" if it may
func (r *Response) StorageVeto() string {
	if r.Size() > MaxCacheableSize {
		return fmt.Sprintf("too_large_for_caching_%d", r.Size())
	}
	if r.StatusCode != http.StatusOK && r.StatusCode != http.StatusNonAuthoritativeInfo {
		return fmt.Sprintf("bad_status_%d", r.StatusCode)
	}
	// Authorization makes pages individual; partial content is never cached
	if r.RequestHeader.Get("Authorization") != "" {
		return "personalized"
	}
	if r.RequestHeader.Get("Range") != "" {
		return "partial_request"
	}
	if r.ResponseHeader.Get("Content-Range") != "" {
		return "partial_response"
	}
	return ""
}

// IsFreshForProxy decides from the stored headers whether a cached copy may be served without refetching
func (r *Response) IsFreshForProxy() bool {
	return r.isFreshAt(time.Now())
}

func (r *Response) isFreshAt(now time.Time) bool {
	if u := r.URL(); u != nil && cgiExtensions[fileExtension(u.Path)] {
		return false
	}

	req := r.RequestHeader
	resp := r.ResponseHeader

	if req.Get("Authorization") != "" || req.Get("Range") != "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(req.Get("Pragma")), "no-cache") {
		return false
	}
	if cc := strings.ToLower(strings.TrimSpace(req.Get("Cache-Control"))); cc != "" {
		if strings.HasPrefix(cc, "no-cache") || strings.HasPrefix(cc, "max-age=0") {
			return false
		}
	}

	lastModified, hasLastModified := parseHeaderTime(resp, "Last-Modified")
	if ims := req.Get("If-Modified-Since"); ims != "" {
		if !hasLastModified {
			return false
		}
		since, err := http.ParseTime(ims)
		if err != nil {
			since = now
		}
		if lastModified.After(since) {
			return false
		}
	}

	// Cookies personalize pages; pictures are still considered fresh
	if !strings.HasPrefix(r.MimeType(), "image/") {
		if req.Get("Cookie") != "" || resp.Get("Set-Cookie") != "" || resp.Get("Set-Cookie2") != "" {
			return false
		}
	}

	if strings.EqualFold(strings.TrimSpace(resp.Get("Pragma")), "no-cache") {
		return false
	}

	expires, hasExpires := parseHeaderTime(resp, "Expires")
	if hasExpires && expires.Before(now) {
		return false
	}
	cacheControl := strings.ToLower(strings.TrimSpace(resp.Get("Cache-Control")))
	if cacheControl == "" && !hasLastModified && !hasExpires {
		return false // no freshness information at all
	}

	date, hasDate := parseHeaderTime(resp, "Date")
	if hasLastModified {
		if !hasDate {
			date = now
			hasDate = true
		}
		// TTL heuristic: a copy stays fresh for a tenth of its age at load time
		age := date.Sub(lastModified)
		if age < 0 {
			return false
		}
		if now.Sub(date) > age/10 {
			return false
		}
	}

	if cacheControl != "" {
		switch {
		case strings.HasPrefix(cacheControl, "private"),
			strings.HasPrefix(cacheControl, "no-cache"),
			strings.HasPrefix(cacheControl, "no-store"):
			return false
		case strings.HasPrefix(cacheControl, "max-age="):
			if !hasDate {
				return false
			}
			seconds, err := strconv.ParseInt(leadingDigits(cacheControl[len("max-age="):]), 10, 64)
			if err != nil {
				return false
			}
			if now.Sub(date) > time.Duration(seconds)*time.Second {
				return false
			}
		}
	}

	return true
}

func parseHeaderTime(h http.Header, key string) (time.Time, bool) {
	v := h.Get(key)
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func fileExtension(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}
