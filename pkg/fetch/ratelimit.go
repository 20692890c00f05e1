package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter enforces a minimum gap between requests to the same host
type RateLimiter struct {
	hostLastRequest   map[string]time.Time // hostname -> last request attempt time
	hostLastRequestMu sync.Mutex
	delay             time.Duration
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A zero delay makes ApplyDelay a no-op.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		delay:           delay,
		log:             log,
	}
}

// ApplyDelay waits until the configured delay has passed since the last request to host.
// Adds +/-10% jitter. Returns ctx.Err() if the context ends first.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string) error {
	if rl.delay <= 0 {
		return nil
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock() // never sleep holding the lock

	if !exists {
		return nil
	}
	elapsed := time.Since(lastReqTime)
	if elapsed >= rl.delay {
		return nil
	}

	sleepDuration := rl.delay - elapsed
	var jitter time.Duration
	if jitterRange := int64(sleepDuration) / 5; jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - (sleepDuration / 10)
	}
	finalSleep := sleepDuration + jitter
	if finalSleep <= 0 {
		return nil
	}

	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": finalSleep, "required_delay": rl.delay, "elapsed": elapsed,
	}).Debug("Rate limit applying sleep")
	return Sleep(ctx, finalSleep)
}

// UpdateLastRequestTime records now as the last request time for host.
// Call it after the request attempt.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
