package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"content-harvester/pkg/cache"
	"content-harvester/pkg/config"
	"content-harvester/pkg/events"
	"content-harvester/pkg/extract"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/lifecycle"
	"content-harvester/pkg/process"
	"content-harvester/pkg/repair"
	"content-harvester/pkg/rules"
	"content-harvester/pkg/search"
	"content-harvester/pkg/storage"
)

const hostEvictionInterval = 5 * time.Minute

// app holds every wired component for one command invocation
type app struct {
	cfg       *config.AppConfig
	log       *logrus.Logger
	store     *storage.BadgerStore
	rules     *rules.Repository
	analyzer  *process.Analyzer
	service   *lifecycle.Service
	publisher events.Publisher
	cache     *cache.RedisResultCache // nil when disabled or unreachable

	cancel context.CancelFunc
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// loadAndValidateConfig loads the config and applies defaults, logging warnings
func loadAndValidateConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	log.Debugf("Loading configuration from %s", path)
	appCfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	return appCfg, nil
}

func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// newApp opens the store and wires the search, extraction and lifecycle components
func newApp(appCfg *config.AppConfig, log *logrus.Logger) (*app, error) {
	entry := log.WithField("component", "harvester")
	ctx, cancel := context.WithCancel(context.Background())
	a := &app{cfg: appCfg, log: log, cancel: cancel}

	store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "storage"))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = store
	go store.RunGC(ctx, appCfg.GCInterval)

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log.WithField("component", "http"))
	rateLimiter := fetch.NewRateLimiter(appCfg.DefaultDelayPerHost, log.WithField("component", "ratelimit"))
	fetcher := fetch.NewFetcher(httpClient, rateLimiter, appCfg.HTTPClientSettings.MaxBodyBytes, log.WithField("component", "fetch"))

	adapters, err := search.NewAdapters(*appCfg, fetcher, log.WithField("component", "search"))
	if err != nil {
		a.Close()
		return nil, err
	}

	// A nil interface, not a nil *RedisResultCache, disables caching
	var resultCache search.ResultCache
	if appCfg.Cache.Enabled {
		c := cache.NewRedisResultCache(appCfg.Cache)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.Ping(pingCtx)
		pingCancel()
		if err != nil {
			entry.Warnf("Search cache disabled: %v", err)
			c.Close()
		} else {
			entry.Infof("Caching search results in redis at %s (ttl %v)", appCfg.Cache.RedisAddr, appCfg.Cache.TTL)
			a.cache = c
			resultCache = c
		}
	}

	if appCfg.Events.Enabled {
		entry.Infof("Publishing lifecycle events to kafka topic '%s'", appCfg.Events.Topic)
		a.publisher = events.NewKafkaPublisher(appCfg.Events, log.WithField("component", "events"))
	} else {
		a.publisher = events.NoopPublisher{}
	}

	analyzer, err := process.NewAnalyzer(appCfg.Analysis, log.WithField("component", "analysis"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.analyzer = analyzer

	hosts := fetch.NewHostSemaphorePool(appCfg.MaxRequestsPerHost, log.WithField("component", "hosts"))
	go hosts.RunEviction(ctx, hostEvictionInterval)

	a.rules = rules.NewRepository(store, log.WithField("component", "rules"))
	a.service = lifecycle.NewService(lifecycle.Options{
		Store:      store,
		Rules:      a.rules,
		Aggregator: search.NewAggregator(adapters, resultCache, appCfg.MaxPageAttempts, log.WithField("component", "aggregator")),
		Extractor:  extract.NewExtractor(fetcher, appCfg.Policy, log.WithField("component", "extract")),
		Repairer:   repair.NewRepairer(fetcher, store, appCfg.Policy, log.WithField("component", "repair")),
		Analyzer:   analyzer,
		Hosts:      hosts,
		Publisher:  a.publisher,
		Crawler:    appCfg.Crawler,
		NumWorkers: appCfg.NumWorkers,
	}, log.WithField("component", "lifecycle"))

	return a, nil
}

// Close stops background goroutines and releases the store, cache and publisher
func (a *app) Close() {
	a.cancel()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warnf("Closing event publisher: %v", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warnf("Closing search cache: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Errorf("Closing store: %v", err)
		}
	}
}

// withApp loads the config, builds the app and runs fn with a context cancelled on SIGINT/SIGTERM
func withApp(configPath, logLevel string, stderr io.Writer, fn func(ctx context.Context, a *app) int) int {
	log := setupLogger(logLevel, stderr)
	appCfg, err := loadAndValidateConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a, err := newApp(appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signalContext(log)
	defer stop()
	return fn(ctx, a)
}
