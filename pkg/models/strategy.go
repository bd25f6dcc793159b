package models

import (
	"fmt"
	"strings"
)

// CacheStrategy governs whether and how a cached copy may satisfy a request
type CacheStrategy string

const (
	CacheStrategyNoCache   CacheStrategy = "nocache"   // Always fetch from the network
	CacheStrategyIfFresh   CacheStrategy = "iffresh"   // Use the cache only if the copy passes the proxy freshness test
	CacheStrategyIfExist   CacheStrategy = "ifexist"   // Use any cached copy, regardless of age
	CacheStrategyCacheOnly CacheStrategy = "cacheonly" // Never touch the network
)

// String implements fmt.Stringer for logging
func (s CacheStrategy) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the strategy is one of the four known values
func (s CacheStrategy) IsValid() bool {
	switch s {
	case CacheStrategyNoCache, CacheStrategyIfFresh, CacheStrategyIfExist, CacheStrategyCacheOnly:
		return true
	}
	return false
}

// ParseCacheStrategy accepts the strategy names case-insensitively
func ParseCacheStrategy(s string) (CacheStrategy, error) {
	strategy := CacheStrategy(strings.ToLower(strings.TrimSpace(s)))
	if !strategy.IsValid() {
		return "", fmt.Errorf("unknown cache strategy %q", s)
	}
	return strategy, nil
}
