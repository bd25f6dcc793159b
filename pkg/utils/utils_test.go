package utils

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	assert.Equal(t, "None", CategorizeError(nil))
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"MalformedHost", ErrMalformedHost, "Reject_MalformedHost"},
		{"Blacklisted", ErrBlacklisted, "Policy_Blacklisted"},
		{"EmptyRedirect", ErrEmptyRedirect, "Redirect_Empty"},
		{"TooManyRedirects", ErrTooManyRedirects, "Redirect_TooMany"},
		{"DuplicateContent", ErrDuplicateContent, "Redirect_DuplicateContent"},
		{"EmptyBody", ErrEmptyBody, "Reject_EmptyBody"},
		{"TooLarge", ErrTooLarge, "Reject_TooLarge"},
		{"UnexpectedStatus", ErrUnexpectedStatus, "HTTP_OtherStatus"},
		{"UnsupportedProtocol", ErrUnsupportedProtocol, "Dispatch_UnsupportedProtocol"},
		{"OfflineOnly", ErrOfflineOnly, "Cache_OfflineOnly"},
		{"SecurityViolation", ErrSecurityViolation, "Policy_Loopback"},
		{"ShutdownInProgress", ErrShutdownInProgress, "System_Shutdown"},
		{"CacheWrite", ErrCacheWrite, "Cache_WriteFailure"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"Transport", ErrTransport, "Network_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeError(tt.err))
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"status 404", fmt.Errorf("%w: status 404 for http://a.example/", ErrUnexpectedStatus), "HTTP_404"},
		{"status 503", fmt.Errorf("%w: status 503 for http://a.example/", ErrUnexpectedStatus), "HTTP_5xx"},
		{"robots", fmt.Errorf("%w: disallowed by robots.txt", ErrBlacklisted), "Policy_Robots"},
		{"filesystem not exist", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrNotExist), "Filesystem_NotExist"},
		{"transport refused", fmt.Errorf("%w: dial tcp: connection refused", ErrTransport), "Network_ConnectionRefused"},
		{"transport dns", fmt.Errorf("%w: lookup x: no such host", ErrTransport), "Network_DNSLookup"},
		{"context canceled", fmt.Errorf("wrapped: %w", context.Canceled), "System_ContextCanceled"},
		{"deadline", context.DeadlineExceeded, "Network_Timeout"},
		{"unknown", errors.New("something odd"), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeError(tt.err))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(fmt.Errorf("%w: x", ErrTooLarge)))
	assert.True(t, IsTerminal(WrapErrorf(ErrOfflineOnly, "url %s", "http://a.example/")))
	assert.False(t, IsTerminal(ErrCacheWrite))
	assert.False(t, IsTerminal(nil))
	assert.False(t, IsTerminal(errors.New("plain")))
}

func TestWrapErrorf(t *testing.T) {
	err := WrapErrorf(ErrConfigValidation, "field %q", "profiles")
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Contains(t, err.Error(), `field "profiles"`)
}

// --- Hash Tests ---

func TestURLHash(t *testing.T) {
	h1 := URLHash("http://example.com/")
	h2 := URLHash("http://example.com/")
	h3 := URLHash("http://example.com/other")

	assert.Len(t, h1, 24)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, CalculateStringSHA256("http://example.com/")[:24], h1)
}

// --- Filename Tests ---

func TestURLFilename(t *testing.T) {
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return u
	}

	name := URLFilename(parse("http://example.com/docs/guide.html?page=1"))
	assert.Regexp(t, `^example\.com_docs_guide-[0-9a-f]{10}\.html$`, name)
	assert.Equal(t, name, URLFilename(parse("http://example.com/docs/guide.html?page=1")))
	assert.NotEqual(t, name, URLFilename(parse("http://example.com/docs/guide.html?page=2")))

	assert.Regexp(t, `^resource-[0-9a-f]{10}$`, URLFilename(parse("http:///")))
	assert.Regexp(t, `^a_b-[0-9a-f]{10}\.txt$`, URLFilename(parse("file:///a<>b.txt")))

	long := "http://example.com/" + strings.Repeat("x", 200)
	longA, longB := URLFilename(parse(long+"a")), URLFilename(parse(long+"b"))
	assert.NotEqual(t, longA, longB)
	assert.LessOrEqual(t, len(longA), maxNameStem+1+nameHashChars)
}
