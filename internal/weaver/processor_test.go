package weaver

import (
	"encoding/binary"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return Identity{WeaverID: "w-1", OrgID: "org-1", OwnerUserID: "user-1"}
}

func buildProcessExecRecord(path string) []byte {
	buf := make([]byte, sizeProcessExec)
	buildHeader(buf, typeProcessExec, 42, 42, 1000, 1000)
	putCString(buf, 32, "bash")
	putCString(buf, 32+maxCommLen, path)
	return buf
}

func TestProcessorEmitsDecodedEvent(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())
	require.NoError(t, p.Process(buildProcessExecRecord("/usr/bin/bash")))

	select {
	case ev := <-p.Outbound():
		require.Equal(t, "w-1", ev.WeaverID)
		require.Equal(t, "process_exec", ev.EventType)
		require.EqualValues(t, 42, ev.PID)
		require.Equal(t, "bash", ev.Comm)
	default:
		t.Fatal("expected an event on Outbound")
	}

	stats := p.StatsSnapshot()
	require.EqualValues(t, 1, stats.Captured["process_exec"])
}

func TestProcessorSuppressesNoisyPathOpen(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())

	buf := make([]byte, sizeFileOpen)
	buildHeader(buf, typeFileOpen, 1, 1, 0, 0)
	putCString(buf, 32, "cat")
	putCString(buf, 32+maxCommLen, "/proc/self/maps")

	require.NoError(t, p.Process(buf))
	select {
	case ev := <-p.Outbound():
		t.Fatalf("expected no event, got %+v", ev)
	default:
	}
}

func TestProcessorKeepsNoisyPathMutation(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())

	buf := make([]byte, sizeFile)
	buildHeader(buf, typeFile, 1, 1, 0, 0)
	putCString(buf, 32, "proc")
	putCString(buf, 32+maxCommLen, "/proc/self/attr")

	require.NoError(t, p.Process(buf))
	select {
	case ev := <-p.Outbound():
		require.Equal(t, "file", ev.EventType)
	default:
		t.Fatal("expected the mutation event to survive the path filter")
	}
}

func TestProcessorUnknownEventTypeDropped(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())

	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], 99)

	err := p.Process(buf)
	require.Error(t, err)
	var unknown UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	require.EqualValues(t, 1, p.StatsSnapshot().Dropped)
}

func TestProcessorRecordTooSmallForHeader(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())
	err := p.Process(make([]byte, 4))
	require.Error(t, err)
	require.EqualValues(t, 1, p.StatsSnapshot().DecodeFailed)
}

func TestProcessorOverflowDropNewest(t *testing.T) {
	p := NewProcessor(testIdentity(), 1, OverflowDropNewest, clockwork.NewFakeClock())

	require.NoError(t, p.Process(buildProcessExecRecord("/a")))
	err := p.Process(buildProcessExecRecord("/b"))
	require.Error(t, err)
	var sendFail SendFailureError
	require.ErrorAs(t, err, &sendFail)
	require.EqualValues(t, 1, p.StatsSnapshot().SendFailed)

	ev := <-p.Outbound()
	require.Contains(t, string(ev.Details), "/a")
}

func TestProcessorOverflowDropOldest(t *testing.T) {
	p := NewProcessor(testIdentity(), 1, OverflowDropOldest, clockwork.NewFakeClock())

	require.NoError(t, p.Process(buildProcessExecRecord("/a")))
	require.NoError(t, p.Process(buildProcessExecRecord("/b")))

	ev := <-p.Outbound()
	require.Contains(t, string(ev.Details), "/b")
}

func TestProcessorDNSResponseFeedsCacheForLaterConnect(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())

	dnsBuf := make([]byte, sizeDNSResponse)
	buildHeader(dnsBuf, typeDNSResponse, 1, 1, 0, 0)
	putCString(dnsBuf, 32, "curl")
	putCString(dnsBuf, 32+maxCommLen, "internal.example")
	copy(dnsBuf[32+maxCommLen+maxHostnameLen:], []byte{10, 0, 0, 5})
	require.NoError(t, p.Process(dnsBuf))
	<-p.Outbound()

	connBuf := make([]byte, sizeNetworkConnect)
	buildHeader(connBuf, typeNetworkConnect, 1, 1, 0, 0)
	binary.LittleEndian.PutUint32(connBuf[32:36], 3)
	copy(connBuf[40:56], []byte{10, 0, 0, 5})
	binary.LittleEndian.PutUint32(connBuf[56:60], 443)
	require.NoError(t, p.Process(connBuf))
	<-p.Outbound()

	entry, ok := p.conns.Lookup(1, 3)
	require.True(t, ok)
	require.Equal(t, "internal.example", entry.Hostname)
}

func TestProcessorClearsConnTrackerOnProcessExit(t *testing.T) {
	p := NewProcessor(testIdentity(), 4, OverflowDropNewest, clockwork.NewFakeClock())
	p.conns.RecordSocket(7, NetworkSocket{FD: 1}, p.clock.Now())

	exitBuf := make([]byte, sizeProcessExit)
	buildHeader(exitBuf, typeProcessExit, 7, 7, 0, 0)
	require.NoError(t, p.Process(exitBuf))
	<-p.Outbound()

	_, ok := p.conns.Lookup(7, 1)
	require.False(t, ok)
}
