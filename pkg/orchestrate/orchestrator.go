package orchestrate

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// Collector is the part of the lifecycle service a collection run needs
type Collector interface {
	SearchAndSave(ctx context.Context, keyword, source string, page, limit int) ([]models.CrawlResult, error)
	Collect(ctx context.Context, ids []string) models.BatchResult
}

// Target is one keyword searched on one source
type Target struct {
	Keyword string
	Source  string
}

func (t Target) String() string {
	return t.Source + "/" + t.Keyword
}

// TargetResult contains the result of collecting a single target
type TargetResult struct {
	Target   Target
	Success  bool
	Error    error
	Saved    int
	Crawled  int
	Duration time.Duration
}

// Options tune a collection run
type Options struct {
	Limit         int  // results per target
	MaxConcurrent int  // targets searched at once; <= 0 means one per target
	DepthCrawl    bool // depth-crawl saved results before the target completes
}

// Orchestrator runs several keyword x source collections in parallel
type Orchestrator struct {
	collector Collector
	targets   []Target
	opts      Options
	log       *logrus.Entry

	sem *semaphore.Weighted

	results []TargetResult

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator for the given targets. Cancelling ctx or calling
// Cancel stops targets that have not started yet.
func NewOrchestrator(ctx context.Context, collector Collector, targets []Target, opts Options, log *logrus.Entry) *Orchestrator {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = max(len(targets), 1)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Orchestrator{
		collector: collector,
		targets:   targets,
		opts:      opts,
		log:       log,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		results:   make([]TargetResult, len(targets)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run collects every target and waits for completion. Results keep the order of the targets.
func (o *Orchestrator) Run() []TargetResult {
	defer o.cancel()
	startTime := time.Now()
	o.log.Infof("Starting collection of %d targets", len(o.targets))

	var wg sync.WaitGroup
	for i, target := range o.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.results[i] = o.collectTarget(target)
		}()
	}
	wg.Wait()

	o.logSummary(time.Since(startTime))
	return o.results
}

func (o *Orchestrator) collectTarget(target Target) TargetResult {
	startTime := time.Now()
	result := TargetResult{Target: target}
	targetLog := o.log.WithFields(logrus.Fields{"source": target.Source, "keyword": target.Keyword})

	if err := o.sem.Acquire(o.ctx, 1); err != nil {
		result.Error = fmt.Errorf("target '%s' not started: %w", target, err)
		result.Duration = time.Since(startTime)
		return result
	}
	defer o.sem.Release(1)

	saved, err := o.collector.SearchAndSave(o.ctx, target.Keyword, target.Source, 1, o.opts.Limit)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(startTime)
		targetLog.WithField("error_category", utils.CategorizeError(err)).Errorf("Collection failed: %v", err)
		return result
	}
	result.Saved = len(saved)
	result.Success = true

	if o.opts.DepthCrawl && len(saved) > 0 {
		ids := make([]string, len(saved))
		for i, c := range saved {
			ids[i] = c.ID
		}
		batch := o.collector.Collect(o.ctx, ids)
		result.Crawled = batch.SuccessCount
		if batch.FailCount > 0 {
			targetLog.Warnf("Depth crawl failed for %d of %d results", batch.FailCount, batch.Total)
		}
	}

	result.Duration = time.Since(startTime)
	targetLog.Infof("Collected %d results", result.Saved)
	return result
}

// Cancel stops all pending targets
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling collection...")
	o.cancel()
}

// logSummary logs a summary of all target results
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Collection completed in %v", totalDuration)
	o.log.Info("Target Results:")

	var totalSaved, totalCrawled int
	successCount := 0
	failCount := 0

	for _, r := range o.results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		totalSaved += r.Saved
		totalCrawled += r.Crawled

		o.log.Infof("  %s: %s - %d saved, %d depth crawled in %v", r.Target, status, r.Saved, r.Crawled, r.Duration)
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d targets (%d success, %d failed), %d saved, %d depth crawled",
		len(o.results), successCount, failCount, totalSaved, totalCrawled)
	o.log.Info("============================================")
}

// ValidateSources checks that every requested source is available
func ValidateSources(available, sources []string) error {
	for _, src := range sources {
		if !slices.Contains(available, src) {
			sorted := slices.Clone(available)
			sort.Strings(sorted)
			return fmt.Errorf("%w: source '%s' not available. Available sources: %v", utils.ErrUnknownSource, src, sorted)
		}
	}
	return nil
}

// ExpandTargets returns every keyword x source pair, keyword-major, skipping duplicates
func ExpandTargets(keywords, sources []string) []Target {
	seen := make(map[Target]bool)
	targets := make([]Target, 0, len(keywords)*len(sources))
	for _, kw := range keywords {
		for _, src := range sources {
			t := Target{Keyword: kw, Source: src}
			if seen[t] {
				continue
			}
			seen[t] = true
			targets = append(targets, t)
		}
	}
	return targets
}
