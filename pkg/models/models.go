package models

import (
	"maps"
	"time"
)

// SearchResult is one normalized hit returned by a source adapter. It is transient until saved as a CrawlResult.
type SearchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Cover       string `json:"cover,omitempty"`
	OriginalURL string `json:"original_url"`
	Source      string `json:"source"`
}

// Valid reports whether the result carries a title plus at least one of summary, source or URL.
func (r SearchResult) Valid() bool {
	if r.Title == "" {
		return false
	}
	return r.Summary != "" || r.Source != "" || r.OriginalURL != ""
}

// SiteRule is a persisted per-site extraction rule. Selectors are CSS selectors.
type SiteRule struct {
	ID              string            `json:"id"`
	SiteName        string            `json:"site_name"`
	SiteURL         string            `json:"site_url"`
	TitleSelector   string            `json:"title_selector"`
	ContentSelector string            `json:"content_selector"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	IsActive        bool              `json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// SetRequestHeaders replaces the rule's headers with a copy of h. An empty map clears them.
func (r *SiteRule) SetRequestHeaders(h map[string]string) {
	if len(h) == 0 {
		r.RequestHeaders = nil
		return
	}
	r.RequestHeaders = maps.Clone(h)
}

// Headers returns a copy of the rule's request headers.
func (r SiteRule) Headers() map[string]string {
	if len(r.RequestHeaders) == 0 {
		return map[string]string{}
	}
	return maps.Clone(r.RequestHeaders)
}

// CrawlResult is a persisted search result moving through the lifecycle
type CrawlResult struct {
	ID           string    `json:"id"`
	Keyword      string    `json:"keyword"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Cover        string    `json:"cover,omitempty"`
	OriginalURL  string    `json:"original_url"`
	Source       string    `json:"source"`
	DepthCrawled bool      `json:"depth_crawled"`
	IsStored     bool      `json:"is_stored"`
	RawData      string    `json:"raw_data,omitempty"` // JSON snapshot of the originating SearchResult
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// State derives the lifecycle position from the flags.
func (c CrawlResult) State() LifecycleState {
	switch {
	case c.DepthCrawled:
		return StateDepthCrawled
	case c.IsStored:
		return StateStored
	default:
		return StateCollected
	}
}

// Link is an anchor found on a detail page
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// DetailResult is the output of a detail extraction
type DetailResult struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	ContentHTML string            `json:"-"` // Markup of the chosen content blocks, kept for markdown rendering
	Images      []string          `json:"images"`
	Videos      []string          `json:"videos"`
	Links       []Link            `json:"links"`
	MetaData    map[string]string `json:"meta_data"`
}

// EmptyDetail returns a DetailResult with non-nil collections, the value used for every failed extraction.
func EmptyDetail() DetailResult {
	return DetailResult{
		Images:   []string{},
		Videos:   []string{},
		Links:    []Link{},
		MetaData: map[string]string{},
	}
}

// IsEmpty reports whether nothing at all was extracted.
func (d DetailResult) IsEmpty() bool {
	return d.Title == "" && d.Content == "" && len(d.Images) == 0 && len(d.Videos) == 0 &&
		len(d.Links) == 0 && len(d.MetaData) == 0
}

// DepthCrawlResult holds the full article extracted for a CrawlResult. At most one exists per parent.
type DepthCrawlResult struct {
	CrawlResultID string            `json:"crawl_result_id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Images        []string          `json:"images"`
	Videos        []string          `json:"videos"`
	Links         []Link            `json:"links"`
	MetaData      map[string]string `json:"meta_data"`
	Markdown      string            `json:"markdown,omitempty"`
	Headings      []string          `json:"headings,omitempty"`
	TokenCount    int               `json:"token_count"`
	ChunkCount    int               `json:"chunk_count"`
	ContentHash   string            `json:"content_hash,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// BatchFailure records why one item in a batch failed
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports per-item outcomes of a batch operation
type BatchResult struct {
	Total        int            `json:"total"`
	SuccessCount int            `json:"success_count"`
	FailCount    int            `json:"fail_count"`
	Failures     []BatchFailure `json:"failures,omitempty"`
}

// KeywordCount is one row of the keyword statistics
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// DateCount is one row of the per-day statistics
type DateCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Stats summarizes the persisted crawl results
type Stats struct {
	TotalCount        int            `json:"total_count"`
	DepthCrawledCount int            `json:"depth_crawled_count"`
	StoredCount       int            `json:"stored_count"`
	KeywordStats      []KeywordCount `json:"keyword_stats"`
	DateStats         []DateCount    `json:"date_stats"`
}
