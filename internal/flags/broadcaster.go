package flags

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// scopeKey identifies one (org, environment) broadcast channel.
type scopeKey struct {
	OrgID string
	EnvID string
}

// Subscription is a single SDK connection's receive side. Consume via
// Events; call Close exactly once when the connection ends.
type Subscription struct {
	id     uuid.UUID
	scope  scopeKey
	events chan Event
	b      *Broadcaster
	closed int32
}

// Events returns the channel to receive broadcast events on.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.b.unsubscribe(s)
}

// Broadcaster fans flag-mutation events out to subscribers grouped by
// (org, environment). Reads (broadcast, stats) dominate writes
// (subscribe/unsubscribe churn is comparatively rare), so the map is
// guarded by a sync.RWMutex rather than a plain Mutex.
type Broadcaster struct {
	mu       sync.RWMutex
	channels map[scopeKey]map[uuid.UUID]*Subscription

	capacity int
	clock    clockwork.Clock

	totalEventsSent  int64
	totalConnections int64
}

// NewBroadcaster constructs a Broadcaster whose per-subscriber channels
// have the given buffer capacity.
func NewBroadcaster(capacity int, clock clockwork.Clock) *Broadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		channels: make(map[scopeKey]map[uuid.UUID]*Subscription),
		capacity: capacity,
		clock:    clock,
	}
}

// Subscribe registers a new receiver for (org, env), lazily creating the
// scope's subscriber set.
func (b *Broadcaster) Subscribe(org, env string) *Subscription {
	key := scopeKey{OrgID: org, EnvID: env}
	sub := &Subscription{
		id:     uuid.New(),
		scope:  key,
		events: make(chan Event, b.capacity),
		b:      b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[key] == nil {
		b.channels[key] = make(map[uuid.UUID]*Subscription)
	}
	b.channels[key][sub.id] = sub
	atomic.AddInt64(&b.totalConnections, 1)
	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.channels[sub.scope]
	if !ok {
		return
	}
	delete(set, sub.id)
	close(sub.events)
}

// Broadcast sends event to every subscriber of (org, env) and returns
// how many received it. A subscriber whose buffer is full is skipped
// rather than blocked — the same "slow consumer loses events, must
// re-sync" contract every bounded channel in this system follows.
func (b *Broadcaster) Broadcast(org, env string, event Event) int {
	return b.broadcastToSet(scopeKey{OrgID: org, EnvID: env}, event)
}

func (b *Broadcaster) broadcastToSet(key scopeKey, event Event) int {
	b.mu.RLock()
	set := b.channels[key]
	subs := make([]*Subscription, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		select {
		case s.events <- event:
			delivered++
		default:
		}
	}
	if delivered > 0 {
		atomic.AddInt64(&b.totalEventsSent, int64(delivered))
	}
	return delivered
}

// BroadcastToOrg sends event to every environment scope under org.
func (b *Broadcaster) BroadcastToOrg(org string, event Event) int {
	b.mu.RLock()
	var keys []scopeKey
	for key := range b.channels {
		if key.OrgID == org {
			keys = append(keys, key)
		}
	}
	b.mu.RUnlock()

	total := 0
	for _, key := range keys {
		total += b.broadcastToSet(key, event)
	}
	return total
}

// BroadcastToAll sends event to every scope, platform-wide — reserved
// for kill-switch class events.
func (b *Broadcaster) BroadcastToAll(event Event) int {
	b.mu.RLock()
	keys := make([]scopeKey, 0, len(b.channels))
	for key := range b.channels {
		keys = append(keys, key)
	}
	b.mu.RUnlock()

	total := 0
	for _, key := range keys {
		total += b.broadcastToSet(key, event)
	}
	return total
}

// BroadcastHeartbeat emits HeartbeatEvent on every channel.
func (b *Broadcaster) BroadcastHeartbeat() int {
	return b.BroadcastToAll(HeartbeatEvent)
}

// RunHeartbeat emits a heartbeat every interval until ctx is done. It's
// meant to be started once as a background goroutine.
func (b *Broadcaster) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.BroadcastHeartbeat()
		}
	}
}

// CleanupEmptyChannels removes scopes with zero subscribers and reports
// how many were removed.
func (b *Broadcaster) CleanupEmptyChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key, set := range b.channels {
		if len(set) == 0 {
			delete(b.channels, key)
			removed++
		}
	}
	return removed
}

// StatsSnapshot reports the broadcaster's current aggregate counters.
func (b *Broadcaster) StatsSnapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	receivers := 0
	for _, set := range b.channels {
		receivers += len(set)
	}
	return Stats{
		ChannelCount:     len(b.channels),
		TotalReceivers:   receivers,
		TotalEventsSent:  atomic.LoadInt64(&b.totalEventsSent),
		TotalConnections: atomic.LoadInt64(&b.totalConnections),
	}
}
