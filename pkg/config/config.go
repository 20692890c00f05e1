package config

import "time"

// Provider identifiers understood by the search package
const (
	ProviderBaidu  = "baidu"
	ProviderBing   = "bing"
	ProviderXinhua = "xinhua"
)

// KnownProviders lists every provider with a built-in adapter, in display order
var KnownProviders = []string{ProviderBaidu, ProviderBing, ProviderXinhua}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// CrawlerConfig is the per-run fetch policy. Passed by value so a run never observes changes.
type CrawlerConfig struct {
	MaxResults        int           `yaml:"max_results"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
	UserAgent         string        `yaml:"user_agent"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay,omitempty"`
}

// DefaultCrawlerConfig returns the policy used when the config file omits the crawler section
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		MaxResults:        10,
		Timeout:           15 * time.Second,
		Retries:           0,
		UserAgent:         defaultUserAgent,
		InitialRetryDelay: 1 * time.Second,
		MaxRetryDelay:     10 * time.Second,
	}
}

// HeuristicPolicy gathers every threshold and token list shared by the adapters, the extractor and repair
type HeuristicPolicy struct {
	MinTitleLength      int      `yaml:"min_title_length"`
	MaxTitleLength      int      `yaml:"max_title_length"`
	MinSummaryLength    int      `yaml:"min_summary_length"`
	MinLinkTextLength   int      `yaml:"min_link_text_length"`
	ContentCutoffLength int      `yaml:"content_cutoff_length"`
	MinContentLength    int      `yaml:"min_content_length"`
	MinParagraphLength  int      `yaml:"min_paragraph_length"`
	RepairContentLength int      `yaml:"repair_content_length"`
	MinMediaSrcLength   int      `yaml:"min_media_src_length"`
	DenyTokens          []string `yaml:"deny_tokens,omitempty"`      // UI labels that disqualify a title
	NavTokens           []string `yaml:"nav_tokens,omitempty"`       // class tokens of navigational blocks
	ContentTokens       []string `yaml:"content_tokens,omitempty"`   // class tokens of article bodies
	ContainerTokens     []string `yaml:"container_tokens,omitempty"` // class tokens of search result blocks
	SummaryTokens       []string `yaml:"summary_tokens,omitempty"`   // class tokens of result abstracts
	SourceTokens        []string `yaml:"source_tokens,omitempty"`    // class tokens of gray "show url" labels
	VideoTokens         []string `yaml:"video_tokens,omitempty"`     // substrings that mark a video/iframe src
}

// DefaultHeuristicPolicy returns the thresholds tuned against the supported providers
func DefaultHeuristicPolicy() HeuristicPolicy {
	return HeuristicPolicy{
		MinTitleLength:      10,
		MaxTitleLength:      200,
		MinSummaryLength:    20,
		MinLinkTextLength:   15,
		ContentCutoffLength: 1000,
		MinContentLength:    200,
		MinParagraphLength:  20,
		RepairContentLength: 500,
		MinMediaSrcLength:   5,
		DenyTokens:          []string{"上一页", "下一页", "帮助", "搜索", "首页", "登录", "注册"},
		NavTokens:           []string{"nav", "sidebar", "header", "footer", "comment"},
		ContentTokens:       []string{"content", "article", "main"},
		ContainerTokens:     []string{"result", "c-container", "content_right", "b_algo"},
		SummaryTokens:       []string{"c-abstract", "content", "b_caption", "abstract"},
		SourceTokens:        []string{"c-color-gray", "c-showurl", "b_attribution"},
		VideoTokens:         []string{"video", "embed"},
	}
}

// SessionConfig is one provider cookie with an optional expiry
type SessionConfig struct {
	Cookie    string    `yaml:"cookie"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"` // zero = never expires
}

// ProviderConfig holds per-provider overrides
type ProviderConfig struct {
	Enabled        *bool           `yaml:"enabled,omitempty"`
	BaseURL        string          `yaml:"base_url,omitempty"`
	AcceptLanguage string          `yaml:"accept_language,omitempty"`
	Sessions       []SessionConfig `yaml:"sessions,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
	MaxBodyBytes          int64         `yaml:"max_body_bytes,omitempty"`
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// CacheConfig configures the Redis search result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db,omitempty"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// EventsConfig configures the Kafka lifecycle event publisher
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// AnalysisConfig configures content analysis of depth crawl results
type AnalysisConfig struct {
	TokenizerEncoding string `yaml:"tokenizer_encoding,omitempty"`
	MaxChunkSize      int    `yaml:"max_chunk_size,omitempty"`
	ChunkOverlap      int    `yaml:"chunk_overlap,omitempty"`
}

// WatchConfig is a keyword collected periodically from a set of sources
type WatchConfig struct {
	Name     string        `yaml:"name"`
	Keyword  string        `yaml:"keyword"`
	Sources  []string      `yaml:"sources"`
	Limit    int           `yaml:"limit,omitempty"`
	Interval time.Duration `yaml:"interval"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Crawler             CrawlerConfig             `yaml:"crawler"`
	HTTPClientSettings  HTTPClientConfig          `yaml:"http_client_settings,omitempty"`
	Policy              HeuristicPolicy           `yaml:"policy,omitempty"`
	Providers           map[string]ProviderConfig `yaml:"providers,omitempty"`
	StateDir            string                    `yaml:"state_dir"`
	ExportDir           string                    `yaml:"export_dir,omitempty"`
	NumWorkers          int                       `yaml:"num_workers"`
	MaxRequestsPerHost  int                       `yaml:"max_requests_per_host,omitempty"`
	DefaultDelayPerHost time.Duration             `yaml:"default_delay_per_host,omitempty"`
	MaxPageAttempts     int                       `yaml:"max_page_attempts,omitempty"`
	GCInterval          time.Duration             `yaml:"gc_interval,omitempty"`
	Cache               CacheConfig               `yaml:"cache,omitempty"`
	Events              EventsConfig              `yaml:"events,omitempty"`
	Analysis            AnalysisConfig            `yaml:"analysis,omitempty"`
	Watches             []WatchConfig             `yaml:"watches,omitempty"`
}

// GetEffectiveProvider returns the provider settings with defaults applied
func GetEffectiveProvider(name string, appCfg AppConfig) ProviderConfig {
	p := appCfg.Providers[name]
	if p.BaseURL == "" {
		p.BaseURL = defaultProviderBaseURL(name)
	}
	if p.AcceptLanguage == "" {
		p.AcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
	}
	return p
}

// IsProviderEnabled reports whether a provider may be used. Providers are enabled unless switched off.
func IsProviderEnabled(name string, appCfg AppConfig) bool {
	p, ok := appCfg.Providers[name]
	if !ok || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

func defaultProviderBaseURL(name string) string {
	switch name {
	case ProviderBaidu:
		return "https://www.baidu.com"
	case ProviderBing:
		return "https://cn.bing.com"
	case ProviderXinhua:
		return "http://sc.news.cn"
	}
	return ""
}
