package storage

import (
	"net/http"
	"time"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
)

// CacheHeader is the metadata stored next to a cached body
type CacheHeader struct {
	URL            string      `json:"url"`
	StatusCode     int         `json:"status_code"`
	RequestHeader  http.Header `json:"request_header,omitempty"`
	ResponseHeader http.Header `json:"response_header,omitempty"`
	StoredAt       time.Time   `json:"stored_at"`
}

// CacheEntry is one cached response as returned by a lookup
type CacheEntry struct {
	Header  CacheHeader
	Content []byte
}

// CacheStats summarizes the cache contents
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// IndexEntry records that a URL has been indexed and where
type IndexEntry struct {
	URL       string    `json:"url"`
	Segment   string    `json:"segment"`
	IndexedAt time.Time `json:"indexed_at"`
}

// CacheStore persists prior responses keyed by URL hash
type CacheStore interface {
	// Lookup returns the cached entry for a URL hash; found is false on a miss
	Lookup(urlHash string) (entry *CacheEntry, found bool, err error)

	// Store writes a response through to the cache under the hash of normalizedURL
	Store(normalizedURL string, header CacheHeader, content []byte) error
}

// IndexPresence answers whether a URL is already part of the full-text index
type IndexPresence interface {
	// Exists returns the segment holding the URL hash; found is false if the URL is not indexed
	Exists(urlHash string) (segment string, found bool, err error)

	// URL returns the URL recorded for a hash, used to resolve referrer ids
	URL(urlHash string) (string, bool, error)
}

// FailureJournal is the durable log of rejected fetch attempts
type FailureJournal interface {
	Append(record *models.FailureRecord) error
}

// JournalReader is the query side of the failure journal used by tooling
type JournalReader interface {
	Recent(limit int) ([]models.FailureRecord, error)
	ForURL(url string) ([]models.FailureRecord, error)
	Count() (int64, error)
}
