package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/orchestrate"
)

// Scheduler collects every configured watch whenever its interval has elapsed
type Scheduler struct {
	collector    orchestrate.Collector
	watches      []config.WatchConfig
	depthCrawl   bool
	log          *logrus.Entry
	stateManager *StateManager

	runningMu sync.Mutex
	running   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a watch scheduler persisting its state under stateDir.
// Watches are expected to be validated already.
func NewScheduler(collector orchestrate.Collector, watches []config.WatchConfig, stateDir string, depthCrawl bool, log *logrus.Entry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		collector:    collector,
		watches:      watches,
		depthCrawl:   depthCrawl,
		log:          log,
		stateManager: NewStateManager(stateDir),
		running:      make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run starts the scheduler and blocks until Stop is called
func (s *Scheduler) Run() error {
	if len(s.watches) == 0 {
		return errors.New("no watches configured")
	}
	s.LoadState()

	s.log.Infof("Starting watch mode for %d watches", len(s.watches))
	s.logSchedule()

	s.startDue()

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.startDue()
		}
	}
}

// LoadState reads the persisted run history. A corrupt state file is logged and ignored.
func (s *Scheduler) LoadState() {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
}

// Stop stops the scheduler. Running collections see a cancelled context.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// startDue launches every due watch that is not already running
func (s *Scheduler) startDue() {
	due := s.dueWatches()
	if len(due) == 0 {
		s.logNextRun()
		return
	}
	for _, w := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runWatch(w)
		}()
	}
}

// RunDue runs every due watch and waits for all of them.
func (s *Scheduler) RunDue() {
	for _, w := range s.dueWatches() {
		s.runWatch(w)
	}
}

// dueWatches marks the returned watches as running
func (s *Scheduler) dueWatches() []config.WatchConfig {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	var due []config.WatchConfig
	for _, w := range s.watches {
		if s.running[w.Name] || !s.stateManager.ShouldRun(w.Name, w.Interval) {
			continue
		}
		s.running[w.Name] = true
		due = append(due, w)
	}
	return due
}

func (s *Scheduler) runWatch(w config.WatchConfig) {
	defer func() {
		s.runningMu.Lock()
		delete(s.running, w.Name)
		s.runningMu.Unlock()
	}()

	watchLog := s.log.WithField("watch", w.Name)
	watchLog.Infof("Collecting '%s' from %v", w.Keyword, w.Sources)

	targets := orchestrate.ExpandTargets([]string{w.Keyword}, w.Sources)
	orch := orchestrate.NewOrchestrator(s.ctx, s.collector, targets, orchestrate.Options{
		Limit:      w.Limit,
		DepthCrawl: s.depthCrawl,
	}, watchLog)
	results := orch.Run()

	success := true
	var saved, crawled int
	var errs []string
	for _, r := range results {
		saved += r.Saved
		crawled += r.Crawled
		if !r.Success {
			success = false
		}
		if r.Error != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.Target.Source, r.Error))
		}
	}
	s.stateManager.Record(w.Name, success, saved, crawled, strings.Join(errs, "; "))

	if err := s.stateManager.Save(); err != nil {
		watchLog.Errorf("Failed to save watch state: %v", err)
	}
}

// tickInterval checks at least every minute and at most every 10 minutes,
// otherwise every tenth of the shortest watch interval
func (s *Scheduler) tickInterval() time.Duration {
	shortest := s.watches[0].Interval
	for _, w := range s.watches[1:] {
		shortest = min(shortest, w.Interval)
	}
	return min(max(shortest/10, time.Minute), 10*time.Minute)
}

func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, w := range s.watches {
		state, exists := s.stateManager.Get(w.Name)
		if !exists {
			s.log.Infof("  %s (every %s): never run, will run immediately", w.Name, FormatInterval(w.Interval))
			continue
		}
		status := "success"
		if !state.LastRunSuccess {
			status = "failed"
		}
		s.log.Infof("  %s (every %s): last run %v (%s, %d saved), next run %v",
			w.Name,
			FormatInterval(w.Interval),
			state.LastRunTime.Format(time.RFC3339),
			status,
			state.Saved,
			s.stateManager.NextRunTime(w.Name, w.Interval).Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	statuses := s.Status()
	if len(statuses) == 0 {
		return
	}
	next := statuses[0]
	until := max(time.Until(next.NextRunTime), 0)
	s.log.Infof("Next collection: %s in %v (at %s)", next.Name, until.Round(time.Second), next.NextRunTime.Format("15:04:05"))
}

// Status contains the status of one watch
type Status struct {
	Name           string
	Keyword        string
	Sources        []string
	Interval       time.Duration
	LastRunTime    time.Time
	LastRunSuccess bool
	Saved          int
	Crawled        int
	ErrorMessage   string
	NextRunTime    time.Time
	NeverRun       bool
}

// Status returns every watch ordered by next run time
func (s *Scheduler) Status() []Status {
	out := make([]Status, 0, len(s.watches))
	for _, w := range s.watches {
		state, exists := s.stateManager.Get(w.Name)
		out = append(out, Status{
			Name:           w.Name,
			Keyword:        w.Keyword,
			Sources:        w.Sources,
			Interval:       w.Interval,
			LastRunTime:    state.LastRunTime,
			LastRunSuccess: state.LastRunSuccess,
			Saved:          state.Saved,
			Crawled:        state.Crawled,
			ErrorMessage:   state.ErrorMessage,
			NextRunTime:    s.stateManager.NextRunTime(w.Name, w.Interval),
			NeverRun:       !exists,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextRunTime.Before(out[j].NextRunTime)
	})
	return out
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
