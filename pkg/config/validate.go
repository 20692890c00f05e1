package config

import (
	"fmt"
	"slices"
	"time"

	"content-harvester/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	warnings = append(warnings, c.Crawler.Validate()...)
	c.Policy.applyDefaults()
	c.validateHTTPClientSettings()

	// NumWorkers: the batch pool is bounded to 1..8
	switch {
	case c.NumWorkers <= 0:
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	case c.NumWorkers > 8:
		warnings = append(warnings, fmt.Sprintf("num_workers %d exceeds 8, clamping to 8", c.NumWorkers))
		c.NumWorkers = 8
	}

	if c.MaxRequestsPerHost <= 0 {
		c.MaxRequestsPerHost = 2
	}

	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, disabling delay")
		c.DefaultDelayPerHost = 0
	}

	if c.MaxPageAttempts <= 0 {
		c.MaxPageAttempts = 5
	}

	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './harvest_state'")
		c.StateDir = "./harvest_state"
	}

	if c.ExportDir == "" {
		c.ExportDir = "./exports"
	}

	if c.GCInterval <= 0 {
		c.GCInterval = 10 * time.Minute
	}

	for name, p := range c.Providers {
		if !slices.Contains(KnownProviders, name) {
			return warnings, fmt.Errorf("%w: unknown provider '%s' (supported: %v)", utils.ErrConfigValidation, name, KnownProviders)
		}
		for i, s := range p.Sessions {
			if s.Cookie == "" {
				warnings = append(warnings, fmt.Sprintf("provider '%s' session #%d has an empty cookie and will be ignored", name, i+1))
			}
		}
	}

	cacheWarnings, err := c.validateCache()
	if err != nil {
		return warnings, err
	}
	warnings = append(warnings, cacheWarnings...)

	if err := c.validateEvents(); err != nil {
		return warnings, err
	}

	c.validateAnalysis()

	for i := range c.Watches {
		w, err := c.Watches[i].Validate()
		if err != nil {
			return warnings, err
		}
		warnings = append(warnings, w...)
	}

	return warnings, nil
}

// Validate applies defaults to the crawler policy and reports what was changed.
func (c *CrawlerConfig) Validate() (warnings []string) {
	def := DefaultCrawlerConfig()
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retries < 0 {
		warnings = append(warnings, "crawler.retries cannot be negative, setting to 0")
		c.Retries = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = def.InitialRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = def.MaxRetryDelay
	}
	if c.InitialRetryDelay > c.MaxRetryDelay {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}
	return warnings
}

// applyDefaults fills every zero threshold and empty token list from DefaultHeuristicPolicy
func (p *HeuristicPolicy) applyDefaults() {
	def := DefaultHeuristicPolicy()
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setInt(&p.MinTitleLength, def.MinTitleLength)
	setInt(&p.MaxTitleLength, def.MaxTitleLength)
	setInt(&p.MinSummaryLength, def.MinSummaryLength)
	setInt(&p.MinLinkTextLength, def.MinLinkTextLength)
	setInt(&p.ContentCutoffLength, def.ContentCutoffLength)
	setInt(&p.MinContentLength, def.MinContentLength)
	setInt(&p.MinParagraphLength, def.MinParagraphLength)
	setInt(&p.RepairContentLength, def.RepairContentLength)
	setInt(&p.MinMediaSrcLength, def.MinMediaSrcLength)

	setTokens := func(v *[]string, d []string) {
		if len(*v) == 0 {
			*v = d
		}
	}
	setTokens(&p.DenyTokens, def.DenyTokens)
	setTokens(&p.NavTokens, def.NavTokens)
	setTokens(&p.ContentTokens, def.ContentTokens)
	setTokens(&p.ContainerTokens, def.ContainerTokens)
	setTokens(&p.SummaryTokens, def.SummaryTokens)
	setTokens(&p.SourceTokens, def.SourceTokens)
	setTokens(&p.VideoTokens, def.VideoTokens)

	if p.MaxTitleLength < p.MinTitleLength {
		p.MaxTitleLength = p.MinTitleLength
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
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
		h.DialerTimeout = 10 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 10 * 1024 * 1024
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func (c *AppConfig) validateCache() (warnings []string, err error) {
	if !c.Cache.Enabled {
		return nil, nil
	}
	if c.Cache.RedisAddr == "" {
		return nil, fmt.Errorf("%w: cache is enabled but cache.redis_addr is empty", utils.ErrConfigValidation)
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "harvest:search:"
	}
	if c.Cache.TTL <= 0 {
		warnings = append(warnings, "cache.ttl not set, defaulting to 30m")
		c.Cache.TTL = 30 * time.Minute
	}
	return warnings, nil
}

func (c *AppConfig) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if len(c.Events.Brokers) == 0 {
		return fmt.Errorf("%w: events are enabled but events.brokers is empty", utils.ErrConfigValidation)
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "harvest.lifecycle"
	}
	return nil
}

func (c *AppConfig) validateAnalysis() {
	a := &c.Analysis
	if a.TokenizerEncoding == "" {
		a.TokenizerEncoding = "cl100k_base"
	}
	if a.MaxChunkSize <= 0 {
		a.MaxChunkSize = 512
	}
	// an omitted overlap reads as 0 and gets the default too
	if a.ChunkOverlap <= 0 || a.ChunkOverlap >= a.MaxChunkSize {
		a.ChunkOverlap = a.MaxChunkSize / 10
	}
}

// Validate checks a watch entry. Keyword and at least one known source are required.
func (w *WatchConfig) Validate() (warnings []string, err error) {
	if w.Name == "" {
		w.Name = w.Keyword
	}
	if w.Keyword == "" {
		return nil, fmt.Errorf("%w: watch '%s' needs a keyword", utils.ErrConfigValidation, w.Name)
	}
	if len(w.Sources) == 0 {
		return nil, fmt.Errorf("%w: watch '%s' needs at least one source", utils.ErrConfigValidation, w.Name)
	}
	for _, src := range w.Sources {
		if !slices.Contains(KnownProviders, src) {
			return nil, fmt.Errorf("%w: watch '%s' uses unknown source '%s'", utils.ErrConfigValidation, w.Name, src)
		}
	}
	if w.Limit <= 0 || w.Limit > 100 {
		warnings = append(warnings, fmt.Sprintf("watch '%s' limit must be within 1..100, defaulting to 10", w.Name))
		w.Limit = 10
	}
	if w.Interval < time.Minute {
		warnings = append(warnings, fmt.Sprintf("watch '%s' interval below 1m, defaulting to 24h", w.Name))
		w.Interval = 24 * time.Hour
	}
	return warnings, nil
}
