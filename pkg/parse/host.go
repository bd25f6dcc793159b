package parse

import (
	"net"
	"net/url"
	"path"
	"strings"
	"unicode"
)

// IsLoopbackHost reports whether host names the local machine without a lookup
// Accepts bare hosts and host:port pairs, with or without IPv6 brackets
func IsLoopbackHost(host string) bool {
	host = stripPort(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// IsLocal reports whether u points at the local file system, a local share, or an intranet address
// Local targets bypass the cache and the politeness throttle
func IsLocal(u *url.URL) bool {
	if u == nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "file", "smb":
		return true
	}
	host := u.Hostname()
	if IsLoopbackHost(host) {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// IsValidHost rejects empty hosts and hosts containing characters no DNS name or IP literal can carry
func IsValidHost(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !(r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return false
			}
		}
	}
	return true
}

// TokenText turns the words of a URL into plain text
// Used as the content of metadata-only responses so the resource stays findable by its name
func TokenText(u *url.URL) string {
	if u == nil {
		return ""
	}
	parts := []string{u.Hostname()}
	p, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		p = u.Path
	}
	p = strings.TrimSuffix(p, path.Ext(p))
	parts = append(parts, p, u.RawQuery)

	var words []string
	for _, part := range parts {
		words = append(words, strings.FieldsFunc(part, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
	}
	return strings.Join(words, " ")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
