package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"content-harvester/pkg/events"
	"content-harvester/pkg/extract"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/parse"
	"content-harvester/pkg/utils"
)

const cancelledReason = "cancelled"

// Collect depth-crawls every id over the worker pool. Records that are missing or
// already depth crawled are counted as failures. Items not started before ctx is
// cancelled fail with reason "cancelled"; items already committed stay committed.
func (s *Service) Collect(ctx context.Context, ids []string) models.BatchResult {
	res := s.runBatch(ctx, ids, s.numWorkers, func(ctx context.Context, id string) error {
		_, err := s.depthCrawl(ctx, id, false)
		return err
	})
	s.log.WithFields(logrus.Fields{
		"total":   res.Total,
		"success": res.SuccessCount,
		"failed":  res.FailCount,
	}).Info("Depth crawl batch finished")
	return res
}

// DepthCrawl depth-crawls a single collected record.
func (s *Service) DepthCrawl(ctx context.Context, id string) (*models.DepthCrawlResult, error) {
	return s.depthCrawl(ctx, id, false)
}

// Recrawl extracts the record again and overwrites its depth result whatever its state.
func (s *Service) Recrawl(ctx context.Context, id string) (*models.DepthCrawlResult, error) {
	return s.depthCrawl(ctx, id, true)
}

func (s *Service) depthCrawl(ctx context.Context, id string, overwrite bool) (*models.DepthCrawlResult, error) {
	record, err := s.store.GetCrawlResult(id)
	if err != nil {
		return nil, err
	}
	if record.DepthCrawled && !overwrite {
		return nil, fmt.Errorf("%w: '%s'", utils.ErrAlreadyDepthCrawled, id)
	}
	if _, err := parse.ParseHTTPURL(record.OriginalURL); err != nil {
		return nil, err
	}

	itemLog := s.log.WithFields(logrus.Fields{"id": id, "url": record.OriginalURL, "source": record.Source})

	rule, err := s.rules.ActiveRuleForSource(record.Source)
	if err != nil {
		return nil, err
	}

	if s.hosts != nil {
		release, err := s.hosts.AcquireURL(ctx, record.OriginalURL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	ext := s.extractWithRetry(ctx, record.OriginalURL, rule)
	if ext.Status == models.FetchStatusFailed {
		itemLog.WithField("error_category", utils.CategorizeError(ext.Err)).Warnf("Depth crawl failed: %v", ext.Err)
		return nil, ext.Err
	}

	if rule != nil && !ext.Match.Complete() && s.repairer != nil {
		itemLog.WithField("rule_match", ext.Match.String()).Info("Rule selectors missed, attempting repair")
		updated, repaired, err := s.repairer.Repair(ctx, record.OriginalURL, *rule, record.Title, s.crawler)
		switch {
		case err != nil:
			itemLog.Warnf("Rule repair failed, keeping heuristic extraction: %v", err)
		case updated:
			s.publishRuleRepaired(ctx, repaired, record.OriginalURL)
			if again := s.extractWithRetry(ctx, record.OriginalURL, &repaired); again.Status != models.FetchStatusFailed {
				ext = again
			}
		}
	}

	depth := models.DepthCrawlResult{
		CrawlResultID: id,
		Title:         ext.Detail.Title,
		Content:       ext.Detail.Content,
		Images:        ext.Detail.Images,
		Videos:        ext.Detail.Videos,
		Links:         ext.Detail.Links,
		MetaData:      ext.Detail.MetaData,
		ContentHash:   utils.ContentHash(ext.Detail.Content),
	}
	if s.analyzer != nil {
		analysis := s.analyzer.Analyze(ext.Detail)
		depth.Markdown = analysis.Markdown
		depth.Headings = analysis.Headings
		depth.TokenCount = analysis.TokenCount
		depth.ChunkCount = len(analysis.Chunks)
	}

	// The flag check is repeated inside the transaction so concurrent crawls of one id commit once
	parent, err := s.store.SaveDepthCrawl(depth, func(c *models.CrawlResult) error {
		if c.DepthCrawled && !overwrite {
			return fmt.Errorf("%w: '%s'", utils.ErrAlreadyDepthCrawled, id)
		}
		c.DepthCrawled = true
		c.IsStored = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := s.event(events.TypeDepthCrawled, *parent)
	evt.Attributes = map[string]string{"content_hash": depth.ContentHash}
	if overwrite {
		evt.Attributes["recrawl"] = "true"
	}
	s.publish(ctx, evt)

	itemLog.WithFields(logrus.Fields{
		"content_len": utils.RuneLen(depth.Content),
		"tokens":      depth.TokenCount,
		"status":      ext.Status,
	}).Info("Depth crawl saved")

	saved, err := s.store.GetDepthResult(id)
	if err != nil {
		return &depth, nil
	}
	return saved, nil
}

// extractWithRetry retries failed extractions up to Retries times with backoff.
// Client errors and rejected URLs are returned at once.
func (s *Service) extractWithRetry(ctx context.Context, rawURL string, rule *models.SiteRule) extract.Extraction {
	for attempt := 0; ; attempt++ {
		ext := s.extractor.ExtractTyped(ctx, rawURL, rule, nil, s.crawler)
		if ext.Status != models.FetchStatusFailed || !utils.IsRetryable(ext.Err) || utils.IsValidationError(ext.Err) {
			return ext
		}
		if attempt >= s.crawler.Retries {
			if s.crawler.Retries > 0 {
				ext.Err = fmt.Errorf("%w: %w", utils.ErrRetryFailed, ext.Err)
			}
			return ext
		}

		delay := fetch.Backoff(attempt+1, s.crawler.InitialRetryDelay, s.crawler.MaxRetryDelay)
		s.log.WithFields(logrus.Fields{"url": rawURL, "attempt": attempt + 1}).Debugf("Retrying extraction in %v: %v", delay, ext.Err)
		if err := fetch.Sleep(ctx, delay); err != nil {
			ext.Err = err
			return ext
		}
	}
}

// runBatch applies fn to every id with at most workers in flight and reports failures
// in input order.
func (s *Service) runBatch(ctx context.Context, ids []string, workers int, fn func(context.Context, string) error) models.BatchResult {
	errs := make([]error, len(ids))
	cancelled := errors.New(cancelledReason)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range ids {
		if ctx.Err() != nil {
			errs[i] = cancelled
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = cancelled
				return nil
			}
			errs[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	res := models.BatchResult{Total: len(ids), Failures: []models.BatchFailure{}}
	for i, err := range errs {
		if err == nil {
			res.SuccessCount++
			continue
		}
		res.FailCount++
		res.Failures = append(res.Failures, models.BatchFailure{ID: ids[i], Reason: failureReason(err, cancelled)})
	}
	return res
}

func failureReason(err, cancelled error) string {
	if err == cancelled || errors.Is(err, context.Canceled) {
		return cancelledReason
	}
	return fmt.Sprintf("%s: %v", utils.CategorizeError(err), err)
}
