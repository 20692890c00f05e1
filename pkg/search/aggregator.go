package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// MaxLimit is the largest number of results one search may request
const MaxLimit = 100

// ResultCache stores aggregated searches. Implementations must be safe for concurrent use.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]models.SearchResult, bool, error)
	Set(ctx context.Context, key string, results []models.SearchResult) error
}

// Aggregator dispatches a search to one adapter and pages through it until the limit is met
type Aggregator struct {
	adapters        map[string]Adapter
	cache           ResultCache // optional
	maxPageAttempts int
	log             *logrus.Entry
}

// NewAggregator creates an Aggregator over the given adapters. cache may be nil.
func NewAggregator(adapters map[string]Adapter, cache ResultCache, maxPageAttempts int, log *logrus.Entry) *Aggregator {
	if maxPageAttempts <= 0 {
		maxPageAttempts = 5
	}
	return &Aggregator{
		adapters:        adapters,
		cache:           cache,
		maxPageAttempts: maxPageAttempts,
		log:             log,
	}
}

// Sources lists the available source identifiers in sorted order
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.adapters))
	for name := range a.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adapter returns the adapter registered for source
func (a *Aggregator) Adapter(source string) (Adapter, error) {
	adapter, ok := a.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %s)", utils.ErrUnknownSource, source, strings.Join(a.Sources(), ", "))
	}
	return adapter, nil
}

// Search returns at most limit results with distinct titles, in arrival order across pages.
// page is 1-based. Paging stops at the first page that yields nothing or after maxPageAttempts calls.
func (a *Aggregator) Search(ctx context.Context, keyword, source string, page, limit int, cfg config.CrawlerConfig) ([]models.SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	source = strings.TrimSpace(source)

	adapter, err := a.Adapter(source)
	if err != nil {
		return nil, err
	}
	if keyword == "" && !adapter.KeywordOptional() {
		return nil, fmt.Errorf("%w: keyword is required for source '%s'", utils.ErrValidation, source)
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1, got %d", utils.ErrValidation, page)
	}
	if limit < 1 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be within [1,%d], got %d", utils.ErrValidation, MaxLimit, limit)
	}

	searchLog := a.log.WithFields(logrus.Fields{"source": source, "keyword": keyword, "page": page, "limit": limit})

	key := CacheKey(source, keyword, page, limit)
	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			searchLog.Warnf("Search cache read failed: %v", err)
		case ok:
			searchLog.Debugf("Serving %d cached results", len(cached))
			return cached, nil
		}
	}

	seen := make(map[string]bool)
	results := make([]models.SearchResult, 0, limit)
	pageIndex := page - 1

	for attempt := 0; attempt < a.maxPageAttempts && len(results) < limit; attempt++ {
		if ctx.Err() != nil {
			searchLog.Warnf("Search interrupted: %v", ctx.Err())
			break
		}
		res := adapter.Fetch(ctx, keyword, pageIndex+attempt, cfg)
		if len(res.Results) == 0 {
			searchLog.WithField("status", res.Status).Debugf("Page %d yielded nothing, stopping", pageIndex+attempt+1)
			break
		}
		for _, r := range res.Results {
			if r.Title == "" || seen[r.Title] {
				continue
			}
			seen[r.Title] = true
			results = append(results, r)
			if len(results) == limit {
				break
			}
		}
	}

	searchLog.Infof("Search returned %d results", len(results))

	if a.cache != nil && len(results) > 0 {
		if err := a.cache.Set(ctx, key, results); err != nil {
			searchLog.Warnf("Search cache write failed: %v", err)
		}
	}
	return results, nil
}

// CacheKey identifies one aggregated search
func CacheKey(source, keyword string, page, limit int) string {
	return fmt.Sprintf("%s|%d|%d|%s", source, page, limit, keyword)
}
