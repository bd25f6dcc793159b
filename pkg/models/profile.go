package models

import "time"

// CrawlProfile is the read-only view of a named crawl configuration bundle
type CrawlProfile struct {
	Handle         string
	Name           string
	CacheStrategy  CacheStrategy
	StoreHTCache   bool  // Write fetched responses through to the cache store
	MaxFileSize    int64 // 0 = protocol default
	AcceptLanguage string
	AcceptCharset  string
	AcceptEncoding string
}

// FailureRecord is one entry of the failure journal
type FailureRecord struct {
	URL         string    `json:"url"`
	InitiatorID string    `json:"initiator_id"`
	Timestamp   time.Time `json:"timestamp"`
	Attempt     int       `json:"attempt"`
	Reason      string    `json:"reason"`
	Category    string    `json:"category"`
	HTTPStatus  int       `json:"http_status,omitempty"` // 0 when no HTTP status applies
}
