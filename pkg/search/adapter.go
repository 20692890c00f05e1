package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// PageFetcher performs one GET. *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) fetch.Outcome
}

// PageResult is the typed outcome of one adapter call
type PageResult struct {
	Results []models.SearchResult
	Status  models.FetchStatus
	Err     error // set when Status is failed
}

// Adapter translates a keyword and zero-based page index into one provider request
// and normalizes the response.
type Adapter interface {
	Name() string
	// KeywordOptional reports whether an empty keyword is a meaningful query for this provider
	KeywordOptional() bool
	Fetch(ctx context.Context, keyword string, pageIndex int, cfg config.CrawlerConfig) PageResult
}

// FetchPage is the flattened contract: it never fails and returns an empty slice on any transport failure.
func FetchPage(ctx context.Context, a Adapter, keyword string, pageIndex int, cfg config.CrawlerConfig) []models.SearchResult {
	res := a.Fetch(ctx, keyword, pageIndex, cfg)
	if res.Status != models.FetchStatusSuccess {
		return []models.SearchResult{}
	}
	return res.Results
}

// provider holds what every adapter shares: where to send requests, which cookie to send and how to log
type provider struct {
	name           string
	base           *url.URL
	acceptLanguage string
	sessions       *SessionPool
	fetcher        PageFetcher
	policy         config.HeuristicPolicy
	log            *logrus.Entry
}

func newProvider(name string, pc config.ProviderConfig, fetcher PageFetcher, policy config.HeuristicPolicy, log *logrus.Entry) (*provider, error) {
	base, err := url.Parse(strings.TrimRight(pc.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: provider '%s' has invalid base_url '%s'", utils.ErrConfigValidation, name, pc.BaseURL)
	}
	return &provider{
		name:           name,
		base:           base,
		acceptLanguage: pc.AcceptLanguage,
		sessions:       NewSessionPool(pc.Sessions),
		fetcher:        fetcher,
		policy:         policy,
		log:            log.WithField("source", name),
	}, nil
}

func (p *provider) endpoint(path string, query url.Values) string {
	u := *p.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// get fetches rawURL with provider headers and parses it. A nil document comes with the PageResult to return.
// A 403 or 429 revokes the cookie that was sent; the request is not retried.
func (p *provider) get(ctx context.Context, rawURL string, cfg config.CrawlerConfig) (*goquery.Document, PageResult) {
	headers := map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": p.acceptLanguage,
		"Referer":         p.base.String() + "/",
	}
	cookie, hasCookie := p.sessions.Next()
	if hasCookie {
		headers["Cookie"] = cookie
	}

	out := p.fetcher.Fetch(ctx, rawURL, headers, cfg.Timeout)
	switch out.Status {
	case models.FetchStatusSuccess:
	case models.FetchStatusEmpty:
		return nil, PageResult{Results: []models.SearchResult{}, Status: models.FetchStatusEmpty}
	default:
		code := out.StatusCode()
		if hasCookie && (code == http.StatusForbidden || code == http.StatusTooManyRequests) {
			p.sessions.Invalidate(cookie)
			p.log.WithField("status_code", code).Warnf("Session rejected, %d left in rotation", p.sessions.Available())
		}
		p.log.WithField("error_category", utils.CategorizeError(out.Err)).Warnf("Search page fetch failed: %v", out.Err)
		return nil, PageResult{Results: []models.SearchResult{}, Status: models.FetchStatusFailed, Err: out.Err}
	}

	doc, err := out.Page.Document()
	if err != nil {
		p.log.Warnf("Search page parse failed: %v", err)
		return nil, PageResult{Results: []models.SearchResult{}, Status: models.FetchStatusFailed, Err: err}
	}
	return doc, PageResult{}
}

// resultOf wraps parsed results in a PageResult
func resultOf(results []models.SearchResult) PageResult {
	if len(results) == 0 {
		return PageResult{Results: []models.SearchResult{}, Status: models.FetchStatusEmpty}
	}
	return PageResult{Results: results, Status: models.FetchStatusSuccess}
}

// NewAdapters builds the adapters of every enabled provider, keyed by provider name.
func NewAdapters(appCfg config.AppConfig, fetcher PageFetcher, log *logrus.Entry) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter)
	for _, name := range config.KnownProviders {
		if !config.IsProviderEnabled(name, appCfg) {
			log.Infof("Provider '%s' disabled by configuration", name)
			continue
		}
		pc := config.GetEffectiveProvider(name, appCfg)
		p, err := newProvider(name, pc, fetcher, appCfg.Policy, log)
		if err != nil {
			return nil, err
		}
		switch name {
		case config.ProviderBaidu:
			adapters[name] = newBaidu(p)
		case config.ProviderBing:
			adapters[name] = newBing(p)
		case config.ProviderXinhua:
			adapters[name] = newXinhua(p)
		}
	}
	return adapters, nil
}
