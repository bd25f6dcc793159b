package models

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRequest(t *testing.T, raw string) *Request {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return &Request{URL: u, RedirectsRemaining: 5}
}

func TestCacheStrategy(t *testing.T) {
	t.Run("parse known values", func(t *testing.T) {
		for _, s := range []string{"nocache", "IFFRESH", " ifexist ", "CacheOnly"} {
			strategy, err := ParseCacheStrategy(s)
			require.NoError(t, err, s)
			assert.True(t, strategy.IsValid())
		}
	})

	t.Run("reject unknown", func(t *testing.T) {
		_, err := ParseCacheStrategy("sometimes")
		assert.Error(t, err)
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "unset", CacheStrategy("").String())
		assert.Equal(t, "iffresh", CacheStrategyIfFresh.String())
	})
}

func TestRequest_RedirectTo(t *testing.T) {
	req := mustRequest(t, "http://example.com/a")
	target, _ := url.Parse("http://example.com/b")

	req.RedirectTo(target)

	assert.Equal(t, "http://example.com/b", req.URL.String())
	assert.Equal(t, 4, req.RedirectsRemaining)
	assert.Equal(t, "http", req.Protocol())
}

func TestResponse_MimeType(t *testing.T) {
	resp := NewResponse(nil, nil, http.Header{"Content-Type": {"text/HTML; charset=utf-8"}}, 200, nil, nil)
	assert.Equal(t, "text/html", resp.MimeType())

	resp = NewResponse(nil, nil, nil, 200, nil, nil)
	assert.Equal(t, "application/octet-stream", resp.MimeType())
	assert.True(t, resp.Indexable)
}

func TestResponse_StorageVeto(t *testing.T) {
	req := mustRequest(t, "http://example.com/")

	tests := []struct {
		name     string
		status   int
		reqHdr   http.Header
		respHdr  http.Header
		size     int
		expected string
	}{
		{"ok", 200, nil, nil, 10, ""},
		{"non authoritative ok", 203, nil, nil, 10, ""},
		{"bad status", 404, nil, nil, 10, "bad_status_404"},
		{"authorization", 200, http.Header{"Authorization": {"Basic x"}}, nil, 10, "personalized"},
		{"range request", 200, http.Header{"Range": {"bytes=0-10"}}, nil, 10, "partial_request"},
		{"content range", 200, nil, http.Header{"Content-Range": {"bytes 0-10/100"}}, 10, "partial_response"},
		{"too large", 200, nil, nil, MaxCacheableSize + 1, "too_large_for_caching_10485761"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(req, tt.reqHdr, tt.respHdr, tt.status, nil, make([]byte, tt.size))
			assert.Equal(t, tt.expected, resp.StorageVeto())
		})
	}
}

func TestResponse_IsFreshForProxy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	httpDate := func(t time.Time) string { return t.Format(http.TimeFormat) }

	tests := []struct {
		name     string
		rawURL   string
		reqHdr   http.Header
		respHdr  http.Header
		expected bool
	}{
		{
			name:     "no freshness information is stale",
			respHdr:  http.Header{"Content-Type": {"text/html"}},
			expected: false,
		},
		{
			name:     "future expires is fresh",
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}},
			expected: true,
		},
		{
			name:     "past expires is stale",
			respHdr:  http.Header{"Expires": {httpDate(now.Add(-time.Hour))}},
			expected: false,
		},
		{
			name: "max-age within window",
			respHdr: http.Header{
				"Date":          {httpDate(now.Add(-30 * time.Second))},
				"Cache-Control": {"max-age=60"},
			},
			expected: true,
		},
		{
			name: "max-age elapsed",
			respHdr: http.Header{
				"Date":          {httpDate(now.Add(-2 * time.Minute))},
				"Cache-Control": {"max-age=60"},
			},
			expected: false,
		},
		{
			name:     "max-age without date",
			respHdr:  http.Header{"Cache-Control": {"max-age=60"}},
			expected: false,
		},
		{
			name:     "no-store",
			respHdr:  http.Header{"Cache-Control": {"no-store"}, "Expires": {httpDate(now.Add(time.Hour))}},
			expected: false,
		},
		{
			name: "last-modified ttl heuristic fresh",
			respHdr: http.Header{
				"Date":          {httpDate(now.Add(-time.Hour))},
				"Last-Modified": {httpDate(now.Add(-101 * time.Hour))},
			},
			expected: true, // age 100h, ttl 10h, loaded 1h ago
		},
		{
			name: "last-modified ttl heuristic stale",
			respHdr: http.Header{
				"Date":          {httpDate(now.Add(-20 * time.Hour))},
				"Last-Modified": {httpDate(now.Add(-30 * time.Hour))},
			},
			expected: false, // age 10h, ttl 1h, loaded 20h ago
		},
		{
			name:     "cgi path",
			rawURL:   "http://example.com/search.php",
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}},
			expected: false,
		},
		{
			name:     "authorization in request",
			reqHdr:   http.Header{"Authorization": {"Bearer x"}},
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}},
			expected: false,
		},
		{
			name:     "request pragma no-cache",
			reqHdr:   http.Header{"Pragma": {"No-Cache"}},
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}},
			expected: false,
		},
		{
			name:     "set-cookie on html",
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}, "Set-Cookie": {"a=b"}},
			expected: false,
		},
		{
			name: "set-cookie on image still fresh",
			respHdr: http.Header{
				"Expires":      {httpDate(now.Add(time.Hour))},
				"Set-Cookie":   {"a=b"},
				"Content-Type": {"image/png"},
			},
			expected: true,
		},
		{
			name:     "if-modified-since without last-modified",
			reqHdr:   http.Header{"If-Modified-Since": {httpDate(now.Add(-time.Hour))}},
			respHdr:  http.Header{"Expires": {httpDate(now.Add(time.Hour))}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.rawURL
			if raw == "" {
				raw = "http://example.com/page.html"
			}
			resp := NewResponse(mustRequest(t, raw), tt.reqHdr, tt.respHdr, 200, nil, []byte("x"))
			assert.Equal(t, tt.expected, resp.isFreshAt(now))
		})
	}
}

func TestLeadingDigits(t *testing.T) {
	assert.Equal(t, "60", leadingDigits("60, must-revalidate"))
	assert.Equal(t, "", leadingDigits("abc"))
	assert.Equal(t, "php", fileExtension("/a/b/index.PHP"))
	assert.Equal(t, "", fileExtension("/a/b/"))
}
