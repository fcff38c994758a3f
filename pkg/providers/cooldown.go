package providers

import (
	"sync"
	"time"
)

// CooldownTracker remembers recently failing models so the chain can skip
// them for a while. A zero window disables skipping entirely.
type CooldownTracker struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cooldownEntry
}

type cooldownEntry struct {
	until    time.Time
	failures int
	reason   FailoverReason
}

func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{
		window:  window,
		now:     time.Now,
		entries: make(map[string]cooldownEntry),
	}
}

func (c *CooldownTracker) IsAvailable(key string) bool {
	if c == nil || c.window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return !ok || !c.now().Before(e.until)
}

// MarkFailure puts key into cooldown. Repeated failures double the window,
// capped at eight times the base.
func (c *CooldownTracker) MarkFailure(key string, reason FailoverReason) {
	if c == nil || c.window <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	e.failures++
	mult := 1 << min(e.failures-1, 3)
	e.until = c.now().Add(c.window * time.Duration(mult))
	e.reason = reason
	c.entries[key] = e
}

func (c *CooldownTracker) MarkSuccess(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *CooldownTracker) CooldownRemaining(key string) time.Duration {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	if d := e.until.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}
