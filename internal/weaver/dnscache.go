package weaver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// dnsCacheTTL is the fixed deadline applied when a caller doesn't supply
// its own TTL.
const dnsCacheTTL = 5 * time.Minute

type dnsCacheEntry struct {
	hostname string
	deadline time.Time
}

// DNSCache maps a resolved IP to the hostname that resolved to it, so a
// later connect can be annotated even when the connecting syscall itself
// carries no hostname. Entries expire by TTL rather than being pruned
// eagerly; a lookup past its deadline is treated as a miss.
type DNSCache struct {
	mu      sync.RWMutex
	entries map[string]dnsCacheEntry
	clock   clockwork.Clock
	ttl     time.Duration
}

// NewDNSCache constructs an empty cache. ttl <= 0 defaults to
// dnsCacheTTL.
func NewDNSCache(clock clockwork.Clock, ttl time.Duration) *DNSCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = dnsCacheTTL
	}
	return &DNSCache{
		entries: make(map[string]dnsCacheEntry),
		clock:   clock,
		ttl:     ttl,
	}
}

// Insert records that addr resolved from hostname, refreshing the TTL.
func (c *DNSCache) Insert(addr, hostname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[addr] = dnsCacheEntry{hostname: hostname, deadline: c.clock.Now().Add(c.ttl)}
}

// Lookup returns the hostname addr last resolved from, if the entry
// hasn't expired.
func (c *DNSCache) Lookup(addr string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[addr]
	if !ok || c.clock.Now().After(entry.deadline) {
		return "", false
	}
	return entry.hostname, true
}

// Sweep removes every entry past its TTL deadline and reports how many
// were removed.
func (c *DNSCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for addr, entry := range c.entries {
		if now.After(entry.deadline) {
			delete(c.entries, addr)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently cached, including
// not-yet-swept expired ones.
func (c *DNSCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
