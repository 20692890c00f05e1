package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/events"
	"content-harvester/pkg/extract"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/process"
	"content-harvester/pkg/repair"
	"content-harvester/pkg/rules"
	"content-harvester/pkg/search"
	"content-harvester/pkg/storage"
	"content-harvester/pkg/utils"
)

// Options collects the collaborators of a Service. Analyzer, Hosts and Publisher are optional.
type Options struct {
	Store      storage.CrawlStore
	Rules      *rules.Repository
	Aggregator *search.Aggregator
	Extractor  *extract.Extractor
	Repairer   *repair.Repairer
	Analyzer   *process.Analyzer
	Hosts      *fetch.HostSemaphorePool
	Publisher  events.Publisher
	Crawler    config.CrawlerConfig
	NumWorkers int
}

// Service moves crawl results through collected, depth crawled and stored
type Service struct {
	store      storage.CrawlStore
	rules      *rules.Repository
	aggregator *search.Aggregator
	extractor  *extract.Extractor
	repairer   *repair.Repairer
	analyzer   *process.Analyzer
	hosts      *fetch.HostSemaphorePool
	publisher  events.Publisher
	crawler    config.CrawlerConfig
	numWorkers int
	log        *logrus.Entry
	now        func() time.Time
}

// NewService wires a lifecycle service. The worker count is clamped to 1..8.
func NewService(opts Options, log *logrus.Entry) *Service {
	workers := opts.NumWorkers
	switch {
	case workers <= 0:
		workers = 4
	case workers > 8:
		workers = 8
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		store:      opts.Store,
		rules:      opts.Rules,
		aggregator: opts.Aggregator,
		extractor:  opts.Extractor,
		repairer:   opts.Repairer,
		analyzer:   opts.Analyzer,
		hosts:      opts.Hosts,
		publisher:  publisher,
		crawler:    opts.Crawler,
		numWorkers: workers,
		log:        log,
		now:        time.Now,
	}
}

// CrawlerConfig returns the fetch policy the service runs with.
func (s *Service) CrawlerConfig() config.CrawlerConfig {
	return s.crawler
}

// Sources lists the search sources the aggregator can serve.
func (s *Service) Sources() []string {
	return s.aggregator.Sources()
}

// Search runs the aggregator without persisting anything.
func (s *Service) Search(ctx context.Context, keyword, source string, page, limit int) ([]models.SearchResult, error) {
	return s.aggregator.Search(ctx, keyword, source, page, limit, s.crawler)
}

// SearchAndSave searches and persists every result as a collected crawl result.
func (s *Service) SearchAndSave(ctx context.Context, keyword, source string, page, limit int) ([]models.CrawlResult, error) {
	results, err := s.Search(ctx, keyword, source, page, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []models.CrawlResult{}, nil
	}
	return s.SaveResults(ctx, keyword, results)
}

// SaveResults persists search results under keyword in one transaction.
// Results without a title or without any of summary, source and URL are rejected.
func (s *Service) SaveResults(ctx context.Context, keyword string, results []models.SearchResult) ([]models.CrawlResult, error) {
	keyword = strings.TrimSpace(keyword)
	records := make([]models.CrawlResult, 0, len(results))
	for i, r := range results {
		if !r.Valid() {
			return nil, utils.WrapErrorf(utils.ErrValidation, "result #%d needs a title and one of summary, source or url", i+1)
		}
		// the adapter's ID stays in RawData only; cached searches repeat it
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding result #%d: %w", utils.ErrParsing, i+1, err)
		}
		records = append(records, models.CrawlResult{
			ID:          uuid.NewString(),
			Keyword:     keyword,
			Title:       r.Title,
			Summary:     r.Summary,
			Cover:       r.Cover,
			OriginalURL: r.OriginalURL,
			Source:      r.Source,
			RawData:     string(raw),
		})
	}

	created, err := s.store.CreateCrawlResults(records)
	if err != nil {
		return nil, err
	}

	evts := make([]events.Event, 0, len(created))
	for _, c := range created {
		evts = append(evts, s.event(events.TypeCollected, c))
	}
	s.publish(ctx, evts...)

	s.log.WithFields(logrus.Fields{"keyword": keyword, "count": len(created)}).Info("Saved search results")
	return created, nil
}

// ExtractDetail extracts one URL without touching any record. rule may be nil.
func (s *Service) ExtractDetail(ctx context.Context, rawURL string, rule *models.SiteRule, headers map[string]string) models.DetailResult {
	return s.extractor.Extract(ctx, rawURL, rule, headers, s.crawler)
}

// RepairRule re-derives the selectors of the rule with ruleID against rawURL.
func (s *Service) RepairRule(ctx context.Context, rawURL, ruleID, expectedTitle string) (bool, *models.SiteRule, error) {
	rule, err := s.rules.Get(ruleID)
	if err != nil {
		return false, nil, err
	}
	updated, repaired, err := s.repairer.Repair(ctx, rawURL, *rule, expectedTitle, s.crawler)
	if err != nil {
		return false, nil, err
	}
	if updated {
		s.publishRuleRepaired(ctx, repaired, rawURL)
	}
	return updated, &repaired, nil
}

func (s *Service) event(t events.Type, c models.CrawlResult) events.Event {
	return events.Event{
		Type:       t,
		ID:         c.ID,
		Keyword:    c.Keyword,
		Source:     c.Source,
		URL:        c.OriginalURL,
		OccurredAt: s.now(),
	}
}

func (s *Service) publishRuleRepaired(ctx context.Context, rule models.SiteRule, rawURL string) {
	s.publish(ctx, events.Event{
		Type: events.TypeRuleRepaired,
		ID:   rule.ID,
		URL:  rawURL,
		Attributes: map[string]string{
			"site_name":        rule.SiteName,
			"title_selector":   rule.TitleSelector,
			"content_selector": rule.ContentSelector,
		},
		OccurredAt: s.now(),
	})
}

// publish delivers events on a context detached from cancellation; failures are only logged.
func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evts...); err != nil {
		s.log.WithField("events", len(evts)).Warnf("Publishing lifecycle events failed: %v", err)
	}
}
