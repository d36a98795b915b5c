package audit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRetentionDaemonPurgesOldRows(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newMemStore()
	p := NewPipeline(10, OverflowDropNewest, SeverityDebug, WithStore(store), WithClock(clock))
	sink := NewTestSink("test", SeverityDebug)
	p.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	old := clock.Now().UTC().Add(-40 * 24 * time.Hour)
	fresh := clock.Now().UTC()
	require.NoError(t, store.InsertEvent(ctx, NewEvent(old, EventUserLogin, "old")))
	require.NoError(t, store.InsertEvent(ctx, NewEvent(fresh, EventUserLogin, "fresh")))

	daemon := NewRetentionDaemon(p, store, 30, time.Hour, clock)
	require.NoError(t, daemon.RunOnce(ctx))

	drainUntil(t, sink, 1, time.Second)
	rows, total, err := store.QueryEvents(ctx, Filter{EventType: EventUserLogin})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "fresh", rows[0].Action)

	found := false
	for _, e := range sink.Events() {
		if e.EventType == EventAuditRetentionRun {
			found = true
		}
	}
	require.True(t, found)
}
