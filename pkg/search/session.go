package search

import (
	"sync"
	"time"

	"content-harvester/pkg/config"
)

// SessionPool rotates a provider's configured cookies round-robin.
// Expired cookies are skipped; a cookie the provider rejected (403/429) is dropped for the rest of the process.
type SessionPool struct {
	mu       sync.Mutex
	sessions []config.SessionConfig
	revoked  map[string]bool
	next     int
	now      func() time.Time
}

// NewSessionPool creates a pool. Sessions with an empty cookie are ignored.
func NewSessionPool(sessions []config.SessionConfig) *SessionPool {
	kept := make([]config.SessionConfig, 0, len(sessions))
	for _, s := range sessions {
		if s.Cookie != "" {
			kept = append(kept, s)
		}
	}
	return &SessionPool{
		sessions: kept,
		revoked:  make(map[string]bool),
		now:      time.Now,
	}
}

// Next returns the next usable cookie, or false when none is left.
func (p *SessionPool) Next() (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range len(p.sessions) {
		s := p.sessions[p.next]
		p.next = (p.next + 1) % len(p.sessions)
		if p.revoked[s.Cookie] {
			continue
		}
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			continue
		}
		return s.Cookie, true
	}
	return "", false
}

// Invalidate drops cookie from rotation.
func (p *SessionPool) Invalidate(cookie string) {
	if p == nil || cookie == "" {
		return
	}
	p.mu.Lock()
	p.revoked[cookie] = true
	p.mu.Unlock()
}

// Available counts cookies that are neither expired nor invalidated.
func (p *SessionPool) Available() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for _, s := range p.sessions {
		if p.revoked[s.Cookie] || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)) {
			continue
		}
		n++
	}
	return n
}
