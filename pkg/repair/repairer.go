package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/storage"
	"content-harvester/pkg/utils"
)

// PageFetcher performs one GET. *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) fetch.Outcome
}

// Repairer re-derives the selectors of a rule that no longer matches its site
type Repairer struct {
	fetcher PageFetcher
	store   storage.RuleStore
	policy  config.HeuristicPolicy
	log     *logrus.Entry
}

func NewRepairer(fetcher PageFetcher, store storage.RuleStore, policy config.HeuristicPolicy, log *logrus.Entry) *Repairer {
	return &Repairer{
		fetcher: fetcher,
		store:   store,
		policy:  policy,
		log:     log,
	}
}

// Repair fetches rawURL with the rule's own headers and replaces every selector that
// matches nothing on the live page. Selectors that still match are left alone, so a
// second call with the same inputs reports no update.
//
// When updated is true the returned rule is the stored one and the caller should extract
// again exactly once. Otherwise the input rule is returned unchanged.
func (r *Repairer) Repair(ctx context.Context, rawURL string, rule models.SiteRule, expectedTitle string, cfg config.CrawlerConfig) (bool, models.SiteRule, error) {
	repairLog := r.log.WithFields(logrus.Fields{"rule": rule.SiteName, "url": rawURL})

	if rule.ID == "" {
		return false, rule, fmt.Errorf("%w: rule '%s' has no id", utils.ErrValidation, rule.SiteName)
	}

	headers := rule.Headers()
	if len(headers) == 0 {
		headers = map[string]string{"User-Agent": cfg.UserAgent}
	}
	out := r.fetcher.Fetch(ctx, rawURL, headers, cfg.Timeout)
	if out.Status != models.FetchStatusSuccess {
		err := out.Err
		if err == nil {
			err = fmt.Errorf("%w: empty page", utils.ErrParsing)
		}
		repairLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Repair fetch failed: %v", err)
		return false, rule, err
	}
	doc, err := out.Page.Document()
	if err != nil {
		repairLog.Warnf("Repair parse failed: %v", err)
		return false, rule, err
	}

	titleSelector, contentSelector := r.derive(doc, rule, expectedTitle)
	if titleSelector == "" && contentSelector == "" {
		repairLog.Info("No replacement selectors found, rule unchanged")
		return false, rule, nil
	}

	stored, err := r.store.UpdateRule(rule.ID, func(sr *models.SiteRule) error {
		if titleSelector != "" {
			sr.TitleSelector = titleSelector
		}
		if contentSelector != "" {
			sr.ContentSelector = contentSelector
		}
		return nil
	})
	if err != nil {
		repairLog.Errorf("Persisting repaired rule failed: %v", err)
		return false, rule, err
	}

	repairLog.WithFields(logrus.Fields{
		"title_selector":   stored.TitleSelector,
		"content_selector": stored.ContentSelector,
	}).Info("Rule repaired")
	return true, *stored, nil
}

// derive returns the replacement for each selector that matches nothing, or "" when
// the selector still matches or no candidate element exists.
func (r *Repairer) derive(doc *goquery.Document, rule models.SiteRule, expectedTitle string) (title, content string) {
	if !matches(doc, rule.TitleSelector) {
		if el := FindTitleElement(doc, expectedTitle); el != nil {
			title = StructuralLocator(el)
		}
	}
	if !matches(doc, rule.ContentSelector) {
		if el := FindContentElement(doc, r.policy); el != nil {
			content = StructuralLocator(el)
		}
	}
	return title, content
}

// matches reports whether sel selects at least one element. Invalid selectors match nothing.
func matches(doc *goquery.Document, sel string) bool {
	return sel != "" && doc.Find(sel).Length() > 0
}
