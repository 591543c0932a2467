package server

import (
	"sync"
	"time"
)

// PayloadCache is a single-slot TTL memo of the assembled dashboard payload.
// It is per-instance and disposable; staleness affects latency, not
// correctness.
type PayloadCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	ts      time.Time
	payload *Payload
	now     func() time.Time
}

// NewPayloadCache constructs a cache with the given TTL.
func NewPayloadCache(ttl time.Duration) *PayloadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PayloadCache{ttl: ttl, now: time.Now}
}

// WithClock overrides the cache's time source.
func (c *PayloadCache) WithClock(now func() time.Time) *PayloadCache {
	c.now = now
	return c
}

// Get returns the cached payload if it is still within its TTL.
func (c *PayloadCache) Get() (*Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil || c.now().Sub(c.ts) >= c.ttl {
		return nil, false
	}
	return c.payload, true
}

// Put replaces the cached payload, stamping it with the current time.
func (c *PayloadCache) Put(payload *Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = payload
	c.ts = c.now()
}
