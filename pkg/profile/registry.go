package profile

import (
	"sort"
	"sync"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
)

// Built-in profile handles, always resolvable unless overridden by configuration
const (
	HandleProxy         = "proxy"
	HandleRemote        = "remote"
	HandleSnippetLocal  = "snippet_local"
	HandleSnippetGlobal = "snippet_global"
	HandleSurrogates    = "surrogates"
)

func builtins() []*models.CrawlProfile {
	return []*models.CrawlProfile{
		{Handle: HandleProxy, Name: "proxy", CacheStrategy: models.CacheStrategyIfFresh, StoreHTCache: true},
		{Handle: HandleRemote, Name: "remote", CacheStrategy: models.CacheStrategyIfFresh, StoreHTCache: true},
		{Handle: HandleSnippetLocal, Name: "snippet local text", CacheStrategy: models.CacheStrategyIfExist, StoreHTCache: true},
		{Handle: HandleSnippetGlobal, Name: "snippet global text", CacheStrategy: models.CacheStrategyIfExist, StoreHTCache: true},
		{Handle: HandleSurrogates, Name: "surrogates", CacheStrategy: models.CacheStrategyNoCache, StoreHTCache: false},
	}
}

// Registry resolves crawl profile handles to read-only profiles
type Registry struct {
	mu            sync.RWMutex
	profiles      map[string]*models.CrawlProfile
	defaultHandle string
}

// NewRegistry builds a registry from the built-in profiles plus those defined in cfg
func NewRegistry(cfg *config.AppConfig) *Registry {
	r := &Registry{profiles: make(map[string]*models.CrawlProfile)}
	for _, p := range builtins() {
		r.profiles[p.Handle] = p
	}
	if cfg != nil {
		for handle, pc := range cfg.Profiles {
			r.profiles[handle] = pc.ToProfile(handle)
		}
		r.defaultHandle = cfg.DefaultProfile
	}
	return r
}

// Resolve returns the profile for handle; an empty handle resolves to the configured default
func (r *Registry) Resolve(handle string) (*models.CrawlProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handle == "" {
		handle = r.defaultHandle
	}
	p, ok := r.profiles[handle]
	if !ok {
		return nil, false
	}
	clone := *p
	return &clone, true
}

// Put adds or replaces a profile
func (r *Registry) Put(p *models.CrawlProfile) {
	if p == nil || p.Handle == "" {
		return
	}
	clone := *p
	r.mu.Lock()
	r.profiles[p.Handle] = &clone
	r.mu.Unlock()
}

// Handles lists the known handles in sorted order
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]string, 0, len(r.profiles))
	for h := range r.profiles {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}
