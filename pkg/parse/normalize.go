package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL for comparison, hashing, and storage
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https, 21 for ftp, 445 for smb), ensures an empty path becomes "/", and removes fragments
// The query string is kept; it selects distinct resources for the crawler
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil && defaultPorts[normalized.Scheme] == port {
		normalized.Host = host
	}

	if normalized.Path == "" && normalized.Opaque == "" && normalized.Host != "" {
		normalized.Path = "/"
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
	"smb":   "445",
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI (requiring a scheme) and then normalizes it using NormalizeURL
// Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr) // Stricter parsing
	if err != nil {
		return "", nil, err
	}
	normalizedStr := NormalizeURL(parsed)
	return normalizedStr, parsed, nil
}

// ResolveRedirect resolves a Location header value against the URL that produced it
// Returns nil for an empty or unparseable location
func ResolveRedirect(base *url.URL, location string) *url.URL {
	location = strings.TrimSpace(location)
	if location == "" || base == nil {
		return nil
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved
}
