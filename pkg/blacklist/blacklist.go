package blacklist

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// CategoryCrawler is the blacklist consulted before fetching
const CategoryCrawler = "crawler"

// entry is one "hostpattern/pathregex" rule
// The host pattern is an exact host, "*.domain" for the domain and its subdomains, or "*" for any host
type entry struct {
	host string
	path *regexp.Regexp
}

func (e entry) matches(host, path string) bool {
	switch {
	case e.host == "*":
	case strings.HasPrefix(e.host, "*."):
		domain := e.host[2:]
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			return false
		}
	default:
		if host != e.host {
			return false
		}
	}
	return e.path.MatchString(path)
}

// Blacklist matches (host, path) pairs against per-category rules
// Safe for concurrent use; Replace swaps the rule set atomically
type Blacklist struct {
	mu         sync.RWMutex
	categories map[string][]entry
}

// New returns an empty blacklist
func New() *Blacklist {
	return &Blacklist{categories: make(map[string][]entry)}
}

// Parse builds a blacklist from a YAML document mapping category names to rule lists
func Parse(data []byte) (*Blacklist, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing blacklist YAML: %v", utils.ErrConfigValidation, err)
	}
	bl := New()
	for category, rules := range raw {
		for _, rule := range rules {
			if err := bl.Add(category, rule); err != nil {
				return nil, err
			}
		}
	}
	return bl, nil
}

// Load reads a blacklist file
func Load(path string) (*Blacklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading blacklist '%s': %v", utils.ErrFilesystem, path, err)
	}
	return Parse(data)
}

// Add compiles and appends one "hostpattern/pathregex" rule to a category
// A rule without a slash blocks every path on the host
func (b *Blacklist) Add(category, rule string) error {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil
	}
	host, pathPattern, found := strings.Cut(rule, "/")
	if !found || pathPattern == "" {
		pathPattern = ".*"
	}
	re, err := regexp.Compile("^/?(?:" + pathPattern + ")$")
	if err != nil {
		return fmt.Errorf("%w: invalid blacklist path pattern in '%s': %v", utils.ErrConfigValidation, rule, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(category)
	b.categories[key] = append(b.categories[key], entry{host: strings.ToLower(host), path: re})
	return nil
}

// IsListed reports whether host and path are blacklisted in category
func (b *Blacklist) IsListed(category, host, path string) bool {
	if b == nil {
		return false
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if path == "" {
		path = "/"
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.categories[strings.ToLower(category)] {
		if e.matches(host, path) {
			return true
		}
	}
	return false
}

// Size returns the number of rules in a category
func (b *Blacklist) Size(category string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.categories[strings.ToLower(category)])
}

// Replace swaps in the rules of other
func (b *Blacklist) Replace(other *Blacklist) {
	other.mu.RLock()
	categories := other.categories
	other.mu.RUnlock()

	b.mu.Lock()
	b.categories = categories
	b.mu.Unlock()
}
