package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-loader/pkg/blacklist"
	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/fetch"
	"github.com/Sriram-PR/crawl-loader/pkg/loader"
	applog "github.com/Sriram-PR/crawl-loader/pkg/log"
	"github.com/Sriram-PR/crawl-loader/pkg/metrics"
	"github.com/Sriram-PR/crawl-loader/pkg/profile"
	"github.com/Sriram-PR/crawl-loader/pkg/storage"
)

// loadConfig reads the config file, or returns the defaults when path is empty
func loadConfig(path string) (*config.AppConfig, []string, error) {
	if path == "" {
		return config.Default(), nil, nil
	}
	return config.Load(path)
}

// setup loads the configuration and builds the logger shared by all commands
func setup(opts *globalOptions) (*config.AppConfig, *logrus.Entry, error) {
	cfg, warnings, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}

	logger := applog.NewLogger(cfg.Log)
	log := logrus.NewEntry(logger)
	for _, w := range warnings {
		log.Warnf("Config: %s", w)
	}
	return cfg, log, nil
}

// app is a fully wired loader with its stores, metrics endpoint and blacklist watcher
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Entry
	store    *storage.BadgerStore
	journal  *storage.JournalStore
	profiles *profile.Registry
	loader   *loader.Loader

	cancel context.CancelFunc
	server *http.Server
}

// openApp wires every loader component
// Close must be called to stop background work and release the stores
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, log, err := setup(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &app{cfg: cfg, log: log, cancel: cancel}

	a.store, err = storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "store"))
	if err != nil {
		a.Close()
		return nil, err
	}
	go a.store.RunGC(ctx, cfg.CacheGCInterval)

	a.journal, err = storage.NewJournalStore(cfg.JournalPath, log.WithField("component", "journal"))
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr, registry)
	}

	deps := fetch.Deps{
		Journal: a.journal,
		Traffic: m,
		Metrics: m,
		Log:     log,
	}
	if cfg.BlacklistFile != "" {
		bl, err := blacklist.Load(cfg.BlacklistFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := bl.Watch(ctx, cfg.BlacklistFile, log.WithField("component", "blacklist")); err != nil {
			log.Warnf("Blacklist changes will not be picked up: %v", err)
		}
		deps.Blacklist = bl
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	httpOpts := []fetch.HTTPOption{
		fetch.WithIndex(a.store),
		fetch.WithNameResolver(fetch.StaticResolver(cfg.NameAliases)),
	}
	if cfg.RespectRobots {
		httpOpts = append(httpOpts, fetch.WithRobots(fetch.NewRobotsPolicy(client, cfg.UserAgent, log)))
	}

	a.profiles = profile.NewRegistry(cfg)
	a.loader, err = loader.New(cfg, fetch.DefaultAdapters(cfg, client, deps, httpOpts...), loader.Options{
		Cache:    a.store,
		Profiles: a.profiles,
		Journal:  a.journal,
		Metrics:  m,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		a.log.Infof("Serving metrics on http://%s/metrics", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// Close stops background work and closes the stores
func (a *app) Close() {
	a.cancel()
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warnf("Metrics server shutdown: %v", err)
		}
		cancel()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Errorf("Error closing journal: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Errorf("Error closing store: %v", err)
		}
	}
}

// openStore opens only the cache and index database, for commands that do not fetch
func openStore(opts *globalOptions) (*storage.BadgerStore, *logrus.Entry, error) {
	cfg, log, err := setup(opts)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "store"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return store, log, nil
}
