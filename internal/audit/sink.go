package audit

import "context"

// Sink is a pluggable audit event delivery target. Accepts is checked
// before an event is buffered for this sink so sinks never see events
// below their own MinSeverity; Deliver receives whatever batch
// accumulated since the last flush.
type Sink interface {
	Name() string
	MinSeverity() Severity
	Accepts(e Event) bool
	Deliver(ctx context.Context, batch []Event) error
}

// baseSink centralizes the MinSeverity/Accepts pair every concrete sink
// shares, so each sink type only has to implement Name and Deliver.
type baseSink struct {
	name        string
	minSeverity Severity
}

func (b baseSink) Name() string { return b.name }

func (b baseSink) MinSeverity() Severity { return b.minSeverity }

func (b baseSink) Accepts(e Event) bool { return e.Severity >= b.minSeverity }

// TestSink is an in-memory sink for tests: it records every delivered
// batch rather than writing anywhere.
type TestSink struct {
	baseSink
	Batches [][]Event
	failN   int // number of future Deliver calls to fail, for retry tests
}

// NewTestSink constructs a TestSink with the given minimum severity.
func NewTestSink(name string, minSeverity Severity) *TestSink {
	return &TestSink{baseSink: baseSink{name: name, minSeverity: minSeverity}}
}

// FailNext causes the next n Deliver calls to return an error instead of
// recording the batch.
func (s *TestSink) FailNext(n int) { s.failN = n }

func (s *TestSink) Deliver(ctx context.Context, batch []Event) error {
	if s.failN > 0 {
		s.failN--
		return &SinkUnavailableError{Sink: s.name}
	}
	cp := make([]Event, len(batch))
	copy(cp, batch)
	s.Batches = append(s.Batches, cp)
	return nil
}

// Events flattens every delivered batch in arrival order, for test
// assertions.
func (s *TestSink) Events() []Event {
	var out []Event
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}
