package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// Protocol size defaults; a limit of 0 means unlimited
const (
	DefaultHTTPMaxFileSize int64 = 10 * 1024 * 1024
	DefaultFTPMaxFileSize  int64 = 10 * 1024 * 1024
	DefaultSMBMaxFileSize  int64 = 100 * 1024 * 1024
	DefaultFileMaxFileSize int64 = 0
)

// AppConfig holds the global loader configuration
type AppConfig struct {
	UserAgent          string                   `yaml:"user_agent"`
	AcceptLanguage     string                   `yaml:"accept_language,omitempty"`
	AcceptCharset      string                   `yaml:"accept_charset,omitempty"`
	AcceptEncoding     string                   `yaml:"accept_encoding,omitempty"`
	AllowLoopbackFetch bool                     `yaml:"allow_loopback_fetch,omitempty"`
	PolitenessInterval time.Duration            `yaml:"politeness_interval,omitempty"`
	LedgerMaxHosts     int                      `yaml:"ledger_max_hosts,omitempty"`
	CoalesceWait       time.Duration            `yaml:"coalesce_wait,omitempty"`
	MaxRedirects       int                      `yaml:"max_redirects,omitempty"`
	MaxFileSize        MaxFileSizeConfig        `yaml:"max_file_size,omitempty"`
	HTTPClientSettings HTTPClientConfig         `yaml:"http_client_settings,omitempty"`
	FTP                FTPConfig                `yaml:"ftp,omitempty"`
	SMB                SMBConfig                `yaml:"smb,omitempty"`
	RespectRobots      bool                     `yaml:"respect_robots,omitempty"`
	BlacklistFile      string                   `yaml:"blacklist_file,omitempty"`
	NameAliases        map[string]string        `yaml:"name_aliases,omitempty"` // Alternate domain -> canonical domain
	ParseableMimeTypes []string                 `yaml:"parseable_mime_types,omitempty"`
	StateDir           string                   `yaml:"state_dir"`
	JournalPath        string                   `yaml:"journal_path,omitempty"`
	CacheGCInterval    time.Duration            `yaml:"cache_gc_interval,omitempty"`
	DefaultProfile     string                   `yaml:"default_profile,omitempty"`
	Profiles           map[string]ProfileConfig `yaml:"profiles,omitempty"`
	Log                LogConfig                `yaml:"log,omitempty"`
	MetricsAddr        string                   `yaml:"metrics_addr,omitempty"`
	BatchConcurrency   int                      `yaml:"batch_concurrency,omitempty"`
}

// MaxFileSizeConfig holds the per-protocol download limits in bytes (0 = unlimited)
type MaxFileSizeConfig struct {
	HTTP *int64 `yaml:"http,omitempty"`
	FTP  *int64 `yaml:"ftp,omitempty"`
	SMB  *int64 `yaml:"smb,omitempty"`
	File *int64 `yaml:"file,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Socket timeout for a single request
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	InsecureSkipVerify    bool          `yaml:"insecure_skip_verify,omitempty"`    // Accept self-signed certificates
}

// FTPConfig holds settings for the FTP adapter
type FTPConfig struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	User     string        `yaml:"user,omitempty"`     // Used when the URL carries no credentials
	Password string        `yaml:"password,omitempty"` // Used when the URL carries no credentials
}

// SMBConfig holds settings for the SMB adapter
type SMBConfig struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	User     string        `yaml:"user,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Domain   string        `yaml:"domain,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"` // Rotating log file; empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// ProfileConfig defines one named crawl profile
type ProfileConfig struct {
	Name           string `yaml:"name,omitempty"`
	CacheStrategy  string `yaml:"cache_strategy,omitempty"`
	StoreHTCache   *bool  `yaml:"store_htcache,omitempty"`
	MaxFileSize    int64  `yaml:"max_file_size,omitempty"`
	AcceptLanguage string `yaml:"accept_language,omitempty"`
	AcceptCharset  string `yaml:"accept_charset,omitempty"`
	AcceptEncoding string `yaml:"accept_encoding,omitempty"`
}

// Load reads and validates the YAML configuration at path
// Returns the config, validation warnings, and any fatal error
func Load(path string) (*AppConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading config file '%s': %v", utils.ErrFilesystem, path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*AppConfig, []string, error) {
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing config YAML: %v", utils.ErrConfigValidation, err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// Default returns a validated configuration with every default applied
func Default() *AppConfig {
	cfg := &AppConfig{}
	_, _ = cfg.Validate()
	return cfg
}

// MaxFileSizeFor returns the download limit for a protocol, 0 meaning unlimited
// Unknown protocols get the HTTP limit
func (c *AppConfig) MaxFileSizeFor(protocol string) int64 {
	pick := func(v *int64, def int64) int64 {
		if v != nil {
			return *v
		}
		return def
	}
	switch protocol {
	case "ftp":
		return pick(c.MaxFileSize.FTP, DefaultFTPMaxFileSize)
	case "smb":
		return pick(c.MaxFileSize.SMB, DefaultSMBMaxFileSize)
	case "file":
		return pick(c.MaxFileSize.File, DefaultFileMaxFileSize)
	default:
		return pick(c.MaxFileSize.HTTP, DefaultHTTPMaxFileSize)
	}
}

// ToProfile converts a profile definition into the read-only model handed to adapters
func (p ProfileConfig) ToProfile(handle string) *models.CrawlProfile {
	strategy, err := models.ParseCacheStrategy(p.CacheStrategy)
	if err != nil {
		strategy = models.CacheStrategyIfFresh
	}
	store := true
	if p.StoreHTCache != nil {
		store = *p.StoreHTCache
	}
	name := p.Name
	if name == "" {
		name = handle
	}
	return &models.CrawlProfile{
		Handle:         handle,
		Name:           name,
		CacheStrategy:  strategy,
		StoreHTCache:   store,
		MaxFileSize:    p.MaxFileSize,
		AcceptLanguage: p.AcceptLanguage,
		AcceptCharset:  p.AcceptCharset,
		AcceptEncoding: p.AcceptEncoding,
	}
}
