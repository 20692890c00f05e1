package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type hostSlot struct {
	sem      *semaphore.Weighted
	inFlight int64     // held + waiting permits
	lastUsed time.Time // zero until first release
}

// HostSemaphorePool bounds concurrent requests per host.
// One pool is shared by every depth-crawl worker so the limit holds across a batch.
type HostSemaphorePool struct {
	slots map[string]*hostSlot
	mu    sync.Mutex
	limit int64
	log   *logrus.Entry
}

// NewHostSemaphorePool creates a pool allowing maxPerHost concurrent holders per host.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
	}
	return &HostSemaphorePool{
		slots: make(map[string]*hostSlot),
		limit: limit,
		log:   log,
	}
}

// Acquire blocks until a permit for host is free or ctx is done.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	slot, ok := p.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(p.limit)}
		p.slots[host] = slot
	}
	slot.inFlight++
	p.mu.Unlock()

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		slot.inFlight--
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release returns one permit for host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	slot, ok := p.slots[host]
	if !ok {
		p.mu.Unlock()
		p.log.Errorf("Release called for unknown host: %s", host)
		return
	}
	slot.inFlight--
	slot.lastUsed = time.Now()
	p.mu.Unlock()

	slot.sem.Release(1)
}

// AcquireURL acquires a permit for the host of rawURL and returns its release func.
// Unparseable URLs share the empty host key.
func (p *HostSemaphorePool) AcquireURL(ctx context.Context, rawURL string) (func(), error) {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	if err := p.Acquire(ctx, host); err != nil {
		return nil, err
	}
	return func() { p.Release(host) }, nil
}

// RunEviction drops idle hosts every interval until ctx is done. Run it in a goroutine.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			p.log.Debugf("Stopping host semaphore eviction: %v", ctx.Err())
			return
		}
	}
}

func (p *HostSemaphorePool) evictIdle(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for host, slot := range p.slots {
		if slot.inFlight == 0 && !slot.lastUsed.IsZero() && now.Sub(slot.lastUsed) >= maxIdle {
			delete(p.slots, host)
		}
	}
}

// Len returns the number of tracked hosts.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
