package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drainUntil(t *testing.T, sink *TestSink, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(sink.Events()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(sink.Events()))
}

func TestPipelineDeliversToSink(t *testing.T) {
	p := NewPipeline(10, OverflowDropNewest, SeverityDebug)
	sink := NewTestSink("test", SeverityDebug)
	p.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	now := time.Now().UTC()
	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "login")))
	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogout, "logout")))

	drainUntil(t, sink, 2, time.Second)
}

func TestPipelineSeverityFiltering(t *testing.T) {
	p := NewPipeline(10, OverflowDropNewest, SeverityWarn)
	sink := NewTestSink("test", SeverityDebug)
	p.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	now := time.Now().UTC()
	infoEvent := NewEvent(now, EventUserLogin, "login")
	infoEvent.Severity = SeverityInfo
	require.NoError(t, p.Emit(ctx, infoEvent)) // dropped by pipeline min_severity

	warnEvent := NewEvent(now, EventJobRetried, "retry")
	warnEvent.Severity = SeverityWarn
	require.NoError(t, p.Emit(ctx, warnEvent))

	drainUntil(t, sink, 1, time.Second)
	require.Len(t, sink.Events(), 1)
}

func TestPipelineSinkMinSeverity(t *testing.T) {
	p := NewPipeline(10, OverflowDropNewest, SeverityDebug)
	strict := NewTestSink("strict", SeverityCritical)
	lenient := NewTestSink("lenient", SeverityDebug)
	p.AddSink(strict)
	p.AddSink(lenient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	now := time.Now().UTC()
	infoEvent := NewEvent(now, EventUserLogin, "login")
	infoEvent.Severity = SeverityInfo
	require.NoError(t, p.Emit(ctx, infoEvent))

	drainUntil(t, lenient, 1, time.Second)
	require.Empty(t, strict.Events())
}

func TestPipelineDropNewestOnFull(t *testing.T) {
	p := NewPipeline(1, OverflowDropNewest, SeverityDebug)
	// No sink registered and Run not started: events simply accumulate in
	// the queue, which lets us exercise overflow deterministically.
	now := time.Now().UTC()
	ctx := context.Background()

	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "first")))
	err := p.Emit(ctx, NewEvent(now, EventUserLogin, "second"))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Len(t, p.queue, 1)
	require.Equal(t, "first", p.queue[0].Action)
}

func TestPipelineDropOldestOnFull(t *testing.T) {
	p := NewPipeline(1, OverflowDropOldest, SeverityDebug)
	now := time.Now().UTC()
	ctx := context.Background()

	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "first")))
	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "second")))
	require.Len(t, p.queue, 1)
	require.Equal(t, "second", p.queue[0].Action)
}

func TestPipelineBlockOnFull(t *testing.T) {
	p := NewPipeline(1, OverflowBlock, SeverityDebug)
	sink := NewTestSink("test", SeverityDebug)
	p.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	now := time.Now().UTC()
	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "first")))

	done := make(chan error, 1)
	go func() {
		done <- p.Emit(ctx, NewEvent(now, EventUserLogin, "second"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocking Emit never returned once drain freed space")
	}
}

func TestPipelineSinkFailureIsolated(t *testing.T) {
	p := NewPipeline(10, OverflowDropNewest, SeverityDebug)
	failing := NewTestSink("failing", SeverityDebug)
	failing.FailNext(1)
	ok := NewTestSink("ok", SeverityDebug)
	p.AddSink(failing)
	p.AddSink(ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.NoError(t, p.Emit(ctx, NewEvent(time.Now().UTC(), EventUserLogin, "login")))

	drainUntil(t, ok, 1, time.Second)
	require.Empty(t, failing.Events())
}

func TestPipelinePersistsToStore(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(10, OverflowDropNewest, SeverityDebug, WithStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	now := time.Now().UTC()
	require.NoError(t, p.Emit(ctx, NewEvent(now, EventUserLogin, "login")))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rows, _, _ := p.Query(ctx, Filter{})
		if len(rows) == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("event never reached store")
}
