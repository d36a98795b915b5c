package flags

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndBroadcast(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())

	sub1 := b.Subscribe("org1", "prod")
	sub2 := b.Subscribe("org1", "prod")
	defer sub1.Close()
	defer sub2.Close()

	n := b.Broadcast("org1", "prod", Event{Type: "flag_updated", Data: json.RawMessage(`{"key":"x"}`)})
	require.Equal(t, 2, n)

	select {
	case e := <-sub1.Events():
		require.Equal(t, "flag_updated", e.Type)
	default:
		t.Fatal("sub1 did not receive event")
	}
	select {
	case <-sub2.Events():
	default:
		t.Fatal("sub2 did not receive event")
	}
}

func TestBroadcastNoSubscribersReturnsZero(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())
	require.Equal(t, 0, b.Broadcast("none", "prod", Event{Type: "x"}))
}

func TestBroadcastToOrgReachesAllEnvironments(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())
	prod := b.Subscribe("org1", "prod")
	staging := b.Subscribe("org1", "staging")
	other := b.Subscribe("org2", "prod")
	defer prod.Close()
	defer staging.Close()
	defer other.Close()

	n := b.BroadcastToOrg("org1", Event{Type: "kill"})
	require.Equal(t, 2, n)

	select {
	case <-other.Events():
		t.Fatal("org2 subscriber should not have received org1 broadcast")
	default:
	}
}

func TestBroadcastToAllReachesEverything(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())
	a := b.Subscribe("org1", "prod")
	c := b.Subscribe("org2", "prod")
	defer a.Close()
	defer c.Close()

	n := b.BroadcastToAll(Event{Type: "global"})
	require.Equal(t, 2, n)
}

func TestSlowConsumerDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(1, clockwork.NewFakeClock())
	sub := b.Subscribe("org1", "prod")
	defer sub.Close()

	n1 := b.Broadcast("org1", "prod", Event{Type: "a"})
	n2 := b.Broadcast("org1", "prod", Event{Type: "b"}) // buffer full, dropped
	require.Equal(t, 1, n1)
	require.Equal(t, 0, n2)
}

func TestCleanupEmptyChannels(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())
	sub := b.Subscribe("org1", "prod")
	sub.Close()

	removed := b.CleanupEmptyChannels()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, b.StatsSnapshot().ChannelCount)
}

func TestStatsSnapshot(t *testing.T) {
	b := NewBroadcaster(4, clockwork.NewFakeClock())
	sub1 := b.Subscribe("org1", "prod")
	sub2 := b.Subscribe("org1", "prod")
	defer sub1.Close()
	defer sub2.Close()

	b.Broadcast("org1", "prod", Event{Type: "x"})

	stats := b.StatsSnapshot()
	require.Equal(t, 1, stats.ChannelCount)
	require.Equal(t, 2, stats.TotalReceivers)
	require.EqualValues(t, 2, stats.TotalEventsSent)
	require.EqualValues(t, 2, stats.TotalConnections)
}

func TestRunHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBroadcaster(4, clock)
	sub := b.Subscribe("org1", "prod")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.RunHeartbeat(ctx, 30*time.Second)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	select {
	case e := <-sub.Events():
		require.Equal(t, HeartbeatEvent.Type, e.Type)
	case <-time.After(time.Second):
		t.Fatal("heartbeat never delivered")
	}
}
