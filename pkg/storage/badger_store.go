package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/log"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

const (
	cacheHeaderPrefix = "cache:hdr:"  // Prefix for cached response metadata
	cacheBodyPrefix   = "cache:body:" // Prefix for cached response bodies
	indexKeyPrefix    = "idx:"        // Prefix for index presence entries
	storeDBDir        = "loader_db"   // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements CacheStore and IndexPresence on a single BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the loader database below stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, storeDBDir)
	logger.Infof("Initializing loader database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %v", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger)
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest copy of a response matters

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %v", utils.ErrDatabase, dbPath, err)
	}

	logger.Info("Loader database initialized successfully.")
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Lookup implements CacheStore
// A header without a body (or the reverse) is treated as a miss
func (s *BadgerStore) Lookup(urlHash string) (*CacheEntry, bool, error) {
	var entry *CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		hdrItem, err := txn.Get([]byte(cacheHeaderPrefix + urlHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		bodyItem, err := txn.Get([]byte(cacheBodyPrefix + urlHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Warnf("Cache header without body for hash %s, treating as miss", urlHash)
			return nil
		}
		if err != nil {
			return err
		}

		var header CacheHeader
		if err := hdrItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &header)
		}); err != nil {
			s.log.Warnf("Failed to decode cache header for hash %s: %v. Treating as miss.", urlHash, err)
			return nil
		}
		content, err := bodyItem.ValueCopy(nil)
		if err != nil {
			return err
		}
		entry = &CacheEntry{Header: header, Content: content}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: cache lookup for hash '%s': %v", utils.ErrDatabase, urlHash, err)
	}
	return entry, entry != nil, nil
}

// Store implements CacheStore
func (s *BadgerStore) Store(normalizedURL string, header CacheHeader, content []byte) error {
	hash := utils.URLHash(normalizedURL)
	header.URL = normalizedURL
	if header.StoredAt.IsZero() {
		header.StoredAt = time.Now()
	}
	encoded, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("%w: encoding cache header for '%s': %v", utils.ErrCacheWrite, normalizedURL, err)
	}
	if content == nil {
		content = []byte{}
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(cacheBodyPrefix+hash), content); err != nil {
			return err
		}
		return txn.Set([]byte(cacheHeaderPrefix+hash), encoded)
	})
	if err != nil {
		return fmt.Errorf("%w: storing '%s': %v", utils.ErrCacheWrite, normalizedURL, err)
	}
	return nil
}

// Delete removes a cached response
func (s *BadgerStore) Delete(urlHash string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(cacheHeaderPrefix + urlHash)); err != nil {
			return err
		}
		return txn.Delete([]byte(cacheBodyPrefix + urlHash))
	})
	if err != nil {
		return fmt.Errorf("%w: deleting cache entry '%s': %v", utils.ErrDatabase, urlHash, err)
	}
	return nil
}

// Stats counts cached responses and their body bytes
func (s *BadgerStore) Stats() (CacheStats, error) {
	var stats CacheStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cacheBodyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Entries++
			stats.Bytes += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		return CacheStats{}, fmt.Errorf("%w: scanning cache: %v", utils.ErrDatabase, err)
	}
	return stats, nil
}

// MarkIndexed records a URL as present in the given index segment
func (s *BadgerStore) MarkIndexed(normalizedURL, segment string) error {
	entry := IndexEntry{URL: normalizedURL, Segment: segment, IndexedAt: time.Now()}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding index entry: %v", utils.ErrDatabase, err)
	}
	key := []byte(indexKeyPrefix + utils.URLHash(normalizedURL))
	if err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(key, encoded)
	}); err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkIndexed: %v", err)
		return fmt.Errorf("%w: marking '%s' indexed: %v", utils.ErrDatabase, normalizedURL, err)
	}
	return nil
}

func (s *BadgerStore) indexEntry(urlHash string) (*IndexEntry, error) {
	var entry *IndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKeyPrefix + urlHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded IndexEntry
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			entry = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: index lookup for hash '%s': %v", utils.ErrDatabase, urlHash, err)
	}
	return entry, nil
}

// Exists implements IndexPresence
func (s *BadgerStore) Exists(urlHash string) (string, bool, error) {
	entry, err := s.indexEntry(urlHash)
	if err != nil || entry == nil {
		return "", false, err
	}
	return entry.Segment, true, nil
}

// URL implements IndexPresence
func (s *BadgerStore) URL(urlHash string) (string, bool, error) {
	entry, err := s.indexEntry(urlHash)
	if err != nil || entry == nil {
		return "", false, err
	}
	return entry.URL, true, nil
}

// RunGC runs periodic garbage collection. Should be run in a goroutine
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close cleanly closes the database connection
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing loader DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing loader DB: %v", err)
			return err
		}
		return nil
	}
	return nil
}
