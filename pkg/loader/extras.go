package loader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// DefaultInitiator identifies loads started by the loader's own convenience methods
const DefaultInitiator = "local"

// Stats summarizes the dispatcher's cache usage
type Stats struct {
	Lookups int64   `json:"lookups"`
	Hits    int64   `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

// NewRequest builds a request for u with the configured redirect budget
func (l *Loader) NewRequest(u *url.URL, initiatorID, profileHandle string) *models.Request {
	return &models.Request{
		URL:                u,
		InitiatorID:        initiatorID,
		ProfileHandle:      profileHandle,
		AppearedAt:         time.Now(),
		RedirectsRemaining: l.cfg.MaxRedirects,
	}
}

// LoadWithProfile loads req with the cache strategy and size limit of its crawl profile
// An unknown profile loads with iffresh and the protocol's size limit
func (l *Loader) LoadWithProfile(ctx context.Context, req *models.Request, checkBlacklist bool) (*models.Response, error) {
	strategy := models.CacheStrategyIfFresh
	maxSize := l.ProtocolMaxFileSize(req.URL)
	if profile := l.resolveProfile(req.ProfileHandle); profile != nil {
		if profile.CacheStrategy.IsValid() {
			strategy = profile.CacheStrategy
		}
		if profile.MaxFileSize > 0 {
			maxSize = profile.MaxFileSize
		}
	}
	return l.Load(ctx, req, strategy, maxSize, checkBlacklist)
}

// LoadContent returns only the content of req, using the protocol's size limit
func (l *Loader) LoadContent(ctx context.Context, req *models.Request, strategy models.CacheStrategy) ([]byte, error) {
	resp, err := l.Load(ctx, req, strategy, l.ProtocolMaxFileSize(req.URL), true)
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// LoadToFile loads u and writes its content to target
// The content is written to target+".tmp" first and renamed into place
func (l *Loader) LoadToFile(ctx context.Context, u *url.URL, strategy models.CacheStrategy, maxFileSize int64, target string) error {
	resp, err := l.Load(ctx, l.NewRequest(u, DefaultInitiator, ""), strategy, maxFileSize, true)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: creating directory for '%s': %w", utils.ErrFilesystem, target, err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, resp.Content, 0644); err != nil {
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: renaming '%s' to '%s': %w", utils.ErrFilesystem, tmp, target, err)
	}
	l.log.WithField("url", u.String()).Debugf("Saved %d bytes to %s", len(resp.Content), target)
	return nil
}

// LoadIfNotExistBackground loads u into target with ifexist unless target already exists
// The returned channel yields the outcome once and is then closed
func (l *Loader) LoadIfNotExistBackground(ctx context.Context, u *url.URL, target string, maxFileSize int64) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if _, err := os.Stat(target); err == nil {
			done <- nil
			return
		}
		err := l.LoadToFile(ctx, u, models.CacheStrategyIfExist, maxFileSize, target)
		if err != nil {
			l.log.WithField("url", u.String()).Debugf("Background load failed: %v", err)
		}
		done <- err
	}()
	return done
}

// CacheStats returns lookup and hit counts since the loader was created
func (l *Loader) CacheStats() Stats {
	stats := Stats{
		Lookups: l.cacheLookups.Load(),
		Hits:    l.cacheHits.Load(),
	}
	if stats.Lookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Lookups)
	}
	return stats
}
