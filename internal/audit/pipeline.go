package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// OverflowPolicy governs what happens when Emit is called against a full
// queue.
type OverflowPolicy string

const (
	OverflowDropNewest OverflowPolicy = "drop_newest"
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowBlock      OverflowPolicy = "block"
)

var (
	eventsEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "audit",
		Name:      "events_emitted_total",
		Help:      "count of audit events accepted past severity filtering",
	})
	eventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "audit",
		Name:      "events_dropped_total",
		Help:      "count of audit events dropped by overflow policy",
	}, []string{"policy"})
	sinkDeliveryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "audit",
		Name:      "sink_delivery_failures_total",
		Help:      "count of failed sink delivery attempts",
	}, []string{"sink"})

	// PrometheusCollectors lists every metric this package registers, for
	// a caller that wires them into a shared registry.
	PrometheusCollectors = []prometheus.Collector{eventsEmittedTotal, eventsDroppedTotal, sinkDeliveryFailuresTotal}
)

// Store persists accepted events and answers queries against them. It
// is a collaborator interface; this package ships no concrete database
// implementation (spec.md §1 non-goals).
type Store interface {
	InsertEvent(ctx context.Context, e Event) error
	QueryEvents(ctx context.Context, f Filter) (rows []Event, total int, err error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (deleted int, err error)
}

// Pipeline is the bounded, multi-sink audit event queue. A zero Pipeline
// is not usable; construct with NewPipeline.
type Pipeline struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	capacity int
	policy   OverflowPolicy
	closed   bool

	minSeverity Severity
	sinks       []Sink
	store       Store
	clock       clockwork.Clock
	log         *log.Entry

	wg sync.WaitGroup
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

func WithLogger(l *log.Entry) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline constructs a Pipeline with the given bounded capacity,
// overflow policy, and pipeline-level minimum severity. Sinks are
// registered afterward with AddSink.
func NewPipeline(capacity int, policy OverflowPolicy, minSeverity Severity, opts ...Option) *Pipeline {
	p := &Pipeline{
		capacity:    capacity,
		policy:      policy,
		minSeverity: minSeverity,
		clock:       clockwork.NewRealClock(),
		log:         log.WithField("component", "audit"),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddSink registers a delivery sink. Not safe to call concurrently with
// Run.
func (p *Pipeline) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Emit enqueues e, applying pipeline-level severity filtering and the
// configured overflow policy. It never blocks the caller under
// drop_newest or drop_oldest. Under block it waits for queue space to
// open up (or for the pipeline to close); ctx is honored only up to the
// point the wait begins — once blocked, the call is released solely by
// Run draining the queue or by Close, matching "back-pressure that
// callers can tolerate" (spec.md §4.3).
func (p *Pipeline) Emit(ctx context.Context, e Event) error {
	if e.Severity < p.minSeverity {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) >= p.capacity && !p.closed {
		switch p.policy {
		case OverflowDropNewest:
			eventsDroppedTotal.WithLabelValues(string(OverflowDropNewest)).Inc()
			return ErrQueueFull
		case OverflowDropOldest:
			p.queue = p.queue[1:]
			eventsDroppedTotal.WithLabelValues(string(OverflowDropOldest)).Inc()
		case OverflowBlock:
			p.cond.Wait()
		default:
			eventsDroppedTotal.WithLabelValues("unknown").Inc()
			return ErrQueueFull
		}
	}
	if p.closed {
		return ErrQueueFull
	}

	p.queue = append(p.queue, e)
	eventsEmittedTotal.Inc()
	p.cond.Signal()
	return nil
}

// dequeueAll drains the entire queue, blocking until at least one event
// is available or the pipeline is closed.
func (p *Pipeline) dequeueAll() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil
	}
	batch := p.queue
	p.queue = nil
	p.cond.Broadcast() // wake any blocked producers now that there's room
	return batch
}

// Run drains the queue and fans batches out to every registered sink
// until ctx is done or Close is called. It should be started as a
// background goroutine once, before any Emit calls that might need to
// block under OverflowBlock.
func (p *Pipeline) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		p.Close()
		close(done)
	}()

	for {
		batch := p.dequeueAll()
		if batch == nil {
			return
		}
		p.dispatch(ctx, batch)

		if p.store != nil {
			for _, e := range batch {
				if err := p.store.InsertEvent(ctx, e); err != nil {
					p.log.WithError(err).Warn("failed to persist audit event")
				}
			}
		}
	}
}

// dispatch delivers batch to every sink whose Accepts predicate matches
// at least one event, isolating each sink's failure from the others and
// from the producer.
func (p *Pipeline) dispatch(ctx context.Context, batch []Event) {
	for _, sink := range p.sinks {
		var filtered []Event
		for _, e := range batch {
			if sink.Accepts(e) {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			continue
		}
		if err := sink.Deliver(ctx, filtered); err != nil {
			sinkDeliveryFailuresTotal.WithLabelValues(sink.Name()).Inc()
			p.log.WithError(err).WithField("sink", sink.Name()).Warn("audit sink delivery failed")
		}
	}
}

// Close stops accepting new events into a blocked Emit and unblocks
// Run's drain loop once the queue empties. Idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cond.Broadcast()
}

// Query answers a read request against the backing store, clamping
// Limit to MaxQueryLimit.
func (p *Pipeline) Query(ctx context.Context, f Filter) ([]Event, int, error) {
	f.Limit = NormalizeLimit(f.Limit)
	if p.store == nil {
		return nil, 0, nil
	}
	return p.store.QueryEvents(ctx, f)
}
