package models

import (
	"net/url"
	"time"
)

// Request describes one fetch attempt handed to the loader
// Only the redirect path mutates it, via RedirectTo
type Request struct {
	URL                *url.URL
	InitiatorID        string    // Peer or worker that asked for the fetch
	ReferrerID         string    // URL hash of the referring page, empty if unknown
	ProfileHandle      string    // Crawl profile handle
	AnchorText         string    // Link text the URL was found under
	AppearedAt         time.Time // When the URL was first seen
	Depth              int       // Hop count from the crawl start
	RedirectsRemaining int       // Redirect budget left for this request
}

// RedirectTo replaces the target with a redirect location and spends one redirect
func (r *Request) RedirectTo(target *url.URL) {
	r.URL = target
	r.RedirectsRemaining--
}

// Protocol returns the lowercase URL scheme
func (r *Request) Protocol() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Scheme
}
