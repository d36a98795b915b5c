package query

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	querySentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "query",
		Name:      "sent_total",
		Help:      "total queries sent to clients awaiting a response",
	})
	querySuccessLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loom",
		Subsystem: "query",
		Name:      "success_latency_seconds",
		Help:      "latency of queries that received a response",
		Buckets:   prometheus.DefBuckets,
	})
	queryFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "query",
		Name:      "failure_total",
		Help:      "total queries that did not receive a response, by reason",
	}, []string{"reason"})
	queryPendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loom",
		Subsystem: "query",
		Name:      "pending",
		Help:      "number of queries currently awaiting a response",
	})
)

// PrometheusCollectors lists the collectors a caller should register.
var PrometheusCollectors = []prometheus.Collector{
	querySentTotal,
	querySuccessLatency,
	queryFailureTotal,
	queryPendingGauge,
}

// pendingEntry tracks one in-flight query: its originating session (for
// ListPending) and the channel its waiter is blocked reading from.
type pendingEntry struct {
	sessionID string
	startedAt time.Time
	waiter    chan Response
}

// lateResponse is a response that arrived with no waiter to receive it.
type lateResponse struct {
	Response
	arrivedAt time.Time
}

// Correlator manages pending server-to-client queries and matches
// incoming responses to the waiter that's blocked on them. The
// underlying transport carrying queries out and responses back is
// entirely outside this package's concern.
//
// Rather than the single broadcast-channel-plus-filter design the
// originating description sketches, each pending query gets its own
// single-slot response channel: delivery is then a direct, non-blocking
// send to the one waiter that cares, instead of fanning every response
// out to every waiter and having each check the id. Externally the two
// are indistinguishable — same pending/responses state, same timeout
// races, same "late or unmatched response is ignored" behavior.
type Correlator struct {
	mu       sync.Mutex
	pending  map[uuid.UUID]*pendingEntry
	lateResp map[uuid.UUID]lateResponse

	clock clockwork.Clock
	log   *log.Entry
}

// New constructs an empty Correlator.
func New(clock clockwork.Clock) *Correlator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Correlator{
		pending:  make(map[uuid.UUID]*pendingEntry),
		lateResp: make(map[uuid.UUID]lateResponse),
		clock:    clock,
		log:      log.WithField("component", "query"),
	}
}

// SendQuery registers q as pending and blocks until a matching response
// arrives, q.Timeout elapses, or ctx is cancelled. The pending entry is
// removed exactly once regardless of which of these wins the race.
func (c *Correlator) SendQuery(ctx context.Context, q Query) (Response, error) {
	waiter := make(chan Response, 1)
	started := c.clock.Now()

	c.mu.Lock()
	c.pending[q.ID] = &pendingEntry{sessionID: q.SessionID, startedAt: started, waiter: waiter}
	queryPendingGauge.Set(float64(len(c.pending)))
	c.mu.Unlock()

	querySentTotal.Inc()

	timeout := c.clock.After(q.Timeout)
	select {
	case resp, ok := <-waiter:
		c.removePending(q.ID)
		if !ok {
			queryFailureTotal.WithLabelValues("no_response").Inc()
			return Response{}, ErrNoResponse
		}
		querySuccessLatency.Observe(c.clock.Now().Sub(started).Seconds())
		return resp, nil

	case <-timeout:
		c.removePending(q.ID)
		queryFailureTotal.WithLabelValues("timeout").Inc()
		return Response{}, ErrTimeout

	case <-ctx.Done():
		c.removePending(q.ID)
		queryFailureTotal.WithLabelValues("cancelled").Inc()
		return Response{}, ctx.Err()
	}
}

func (c *Correlator) removePending(id uuid.UUID) {
	c.mu.Lock()
	delete(c.pending, id)
	queryPendingGauge.Set(float64(len(c.pending)))
	c.mu.Unlock()
}

// ReceiveResponse records resp and delivers it to the matching waiter if
// one is still pending. An unmatched or late response (the waiter
// already gave up) is retained for a future GetResponse lookup or the
// periodic sweep in CleanupStale.
func (c *Correlator) ReceiveResponse(resp Response) {
	c.mu.Lock()
	entry, ok := c.pending[resp.ID]
	if !ok {
		c.lateResp[resp.ID] = lateResponse{Response: resp, arrivedAt: c.clock.Now()}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case entry.waiter <- resp:
	default:
		// The waiter already received a response or timed out in the
		// instant between the lookup above and this send; store it as
		// late rather than block or drop it silently.
		c.mu.Lock()
		c.lateResp[resp.ID] = lateResponse{Response: resp, arrivedAt: c.clock.Now()}
		c.mu.Unlock()
	}
}

// GetResponse returns a previously delivered late or unmatched response,
// if one is held for id.
func (c *Correlator) GetResponse(id uuid.UUID) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.lateResp[id]
	return resp.Response, ok
}

// ListPending snapshots the query IDs currently pending for sessionID.
func (c *Correlator) ListPending(sessionID string) []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []uuid.UUID
	for id, entry := range c.pending {
		if entry.sessionID == sessionID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stats reports the correlator's current pending count.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{PendingCount: len(c.pending)}
}

// CleanupStale discards late/unmatched responses that arrived more than
// maxAge ago, so the backing map doesn't grow unbounded when responses
// never get collected via GetResponse.
func (c *Correlator) CleanupStale(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-maxAge)
	removed := 0
	for id, lr := range c.lateResp {
		if lr.arrivedAt.Before(cutoff) {
			delete(c.lateResp, id)
			removed++
		}
	}
	return removed
}

// RunCleanup periodically sweeps stale late responses until ctx is done.
func (c *Correlator) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := c.CleanupStale(maxAge); n > 0 {
				c.log.WithField("removed", n).Debug("swept stale query responses")
			}
		}
	}
}
