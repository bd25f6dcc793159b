package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// Header defaults sent when neither the profile nor the config overrides them
const (
	DefaultAcceptLanguage = "en-us,en;q=0.5"
	DefaultAcceptCharset  = "ISO-8859-1,utf-8;q=0.7,*;q=0.7"
	DefaultAcceptEncoding = "gzip,deflate"
)

var defaultParseableMimeTypes = []string{
	"text/html", "application/xhtml+xml", "text/plain", "text/xml", "application/xml",
	"application/rss+xml", "application/atom+xml", "application/pdf", "application/json",
	"text/csv", "application/msword", "application/rtf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.oasis.opendocument.text",
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "crawl-loader/1.0 (+https://github.com/Sriram-PR/crawl-loader)"
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.AcceptCharset == "" {
		c.AcceptCharset = DefaultAcceptCharset
	}
	if c.AcceptEncoding == "" {
		c.AcceptEncoding = DefaultAcceptEncoding
	}

	// Politeness
	if c.PolitenessInterval < 0 {
		warnings = append(warnings, "politeness_interval cannot be negative, defaulting to 250ms")
		c.PolitenessInterval = 0
	}
	if c.PolitenessInterval == 0 {
		c.PolitenessInterval = 250 * time.Millisecond
	}
	if c.LedgerMaxHosts <= 0 {
		c.LedgerMaxHosts = 1000
	}

	// Coalescing
	if c.CoalesceWait < 0 {
		warnings = append(warnings, "coalesce_wait cannot be negative, defaulting to 5s")
		c.CoalesceWait = 0
	}
	if c.CoalesceWait == 0 {
		c.CoalesceWait = 5 * time.Second
	}

	// Redirects
	if c.MaxRedirects < 0 {
		warnings = append(warnings, "max_redirects cannot be negative, defaulting to 5")
		c.MaxRedirects = 0
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 5
	}

	warnings = append(warnings, c.validateMaxFileSizes()...)
	c.validateHTTPClientSettings()

	if c.FTP.Timeout <= 0 {
		c.FTP.Timeout = 30 * time.Second
	}
	if c.FTP.User == "" {
		c.FTP.User = "anonymous"
		if c.FTP.Password == "" {
			c.FTP.Password = "anonymous@"
		}
	}
	if c.SMB.Timeout <= 0 {
		c.SMB.Timeout = 30 * time.Second
	}
	if c.SMB.User == "" {
		c.SMB.User = "guest"
	}

	if len(c.ParseableMimeTypes) == 0 {
		c.ParseableMimeTypes = append([]string(nil), defaultParseableMimeTypes...)
	} else {
		for i, mt := range c.ParseableMimeTypes {
			c.ParseableMimeTypes[i] = strings.ToLower(strings.TrimSpace(mt))
		}
	}

	// Storage
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './loader_state'")
		c.StateDir = "./loader_state"
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.StateDir, "journal.db")
	}
	if c.CacheGCInterval <= 0 {
		c.CacheGCInterval = 10 * time.Minute
	}

	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	} else if _, perr := logrus.ParseLevel(c.Log.Level); perr != nil {
		warnings = append(warnings, fmt.Sprintf("log.level '%s' is invalid, defaulting to 'info'", c.Log.Level))
		c.Log.Level = "info"
	}
	if c.Log.File != "" {
		if c.Log.MaxSizeMB <= 0 {
			c.Log.MaxSizeMB = 100
		}
		if c.Log.MaxBackups < 0 {
			c.Log.MaxBackups = 0
		}
		if c.Log.MaxAgeDays < 0 {
			c.Log.MaxAgeDays = 0
		}
	}

	// Profiles: invalid profiles are fatal, the loader cannot pick a strategy for them
	handles := make([]string, 0, len(c.Profiles))
	for handle := range c.Profiles {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	for _, handle := range handles {
		p := c.Profiles[handle]
		profileWarnings, perr := p.Validate()
		if perr != nil {
			return warnings, fmt.Errorf("%w: profile '%s': %v", utils.ErrConfigValidation, handle, perr)
		}
		for _, w := range profileWarnings {
			warnings = append(warnings, fmt.Sprintf("profile '%s': %s", handle, w))
		}
		c.Profiles[handle] = p
	}
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			warnings = append(warnings, fmt.Sprintf("default_profile '%s' is not defined, ignoring", c.DefaultProfile))
			c.DefaultProfile = ""
		}
	}

	// Aliases are matched case-insensitively
	if len(c.NameAliases) > 0 {
		normalized := make(map[string]string, len(c.NameAliases))
		for alt, canonical := range c.NameAliases {
			alt = strings.ToLower(strings.TrimSpace(alt))
			canonical = strings.ToLower(strings.TrimSpace(canonical))
			if alt == "" || canonical == "" {
				warnings = append(warnings, "name_aliases contains an empty entry, skipping")
				continue
			}
			normalized[alt] = canonical
		}
		c.NameAliases = normalized
	}

	return warnings, nil
}

func (c *AppConfig) validateMaxFileSizes() (warnings []string) {
	check := func(name string, v **int64) {
		if *v != nil && **v < 0 {
			warnings = append(warnings, fmt.Sprintf("max_file_size.%s cannot be negative, using the protocol default", name))
			*v = nil
		}
	}
	check("http", &c.MaxFileSize.HTTP)
	check("ftp", &c.MaxFileSize.FTP)
	check("smb", &c.MaxFileSize.SMB)
	check("file", &c.MaxFileSize.File)
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks a profile definition and applies defaults.
// Modifies receiver in place (strategy normalization).
func (p *ProfileConfig) Validate() (warnings []string, err error) {
	if p.CacheStrategy == "" {
		p.CacheStrategy = string(models.CacheStrategyIfFresh)
	} else {
		strategy, perr := models.ParseCacheStrategy(p.CacheStrategy)
		if perr != nil {
			return nil, perr
		}
		p.CacheStrategy = string(strategy)
	}
	if p.MaxFileSize < 0 {
		warnings = append(warnings, "max_file_size cannot be negative, using the protocol default")
		p.MaxFileSize = 0
	}
	return warnings, nil
}
