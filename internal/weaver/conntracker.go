package weaver

import (
	"sync"
	"time"
)

// connEntry is one (fd) slot in a PID's recent-connection window.
type connEntry struct {
	FD       uint32
	Domain   uint32
	SockType uint32
	Protocol uint32
	RemoteIP string
	Port     uint32
	Hostname string
	SeenAt   time.Time
}

// maxEntriesPerPID bounds the per-PID window so a process that opens
// many short-lived sockets can't grow the tracker unboundedly; the
// oldest entry is evicted to make room.
const maxEntriesPerPID = 64

// ConnTracker keeps a short, per-PID window of recent socket/connect
// activity so later events (a connect without an inline hostname, a
// later read/write on the same fd) can be enriched and attributed. A
// process exit clears its window entirely.
type ConnTracker struct {
	mu  sync.Mutex
	pid map[uint32]map[uint32]*connEntry // pid -> fd -> entry
}

// NewConnTracker constructs an empty tracker.
func NewConnTracker() *ConnTracker {
	return &ConnTracker{pid: make(map[uint32]map[uint32]*connEntry)}
}

// RecordSocket records a socket(2) call, creating the fd's entry.
func (t *ConnTracker) RecordSocket(pid uint32, ev NetworkSocket, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureRoom(pid)
	t.fdMap(pid)[ev.FD] = &connEntry{
		FD: ev.FD, Domain: ev.Domain, SockType: ev.SockType, Protocol: ev.Protocol, SeenAt: now,
	}
}

// RecordConnect associates a remote endpoint (and optionally a
// dns-cache-resolved hostname) with an already-tracked fd. If the fd
// isn't tracked (e.g. the socket(2) call predates this sidecar's
// attach), a new bare entry is created.
func (t *ConnTracker) RecordConnect(pid, fd uint32, remoteIP string, port uint32, hostname string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureRoom(pid)
	entries := t.fdMap(pid)
	entry, ok := entries[fd]
	if !ok {
		entry = &connEntry{FD: fd}
		entries[fd] = entry
	}
	entry.RemoteIP = remoteIP
	entry.Port = port
	entry.Hostname = hostname
	entry.SeenAt = now
}

// Lookup returns the tracked entry for (pid, fd), if any.
func (t *ConnTracker) Lookup(pid, fd uint32) (connEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries, ok := t.pid[pid]
	if !ok {
		return connEntry{}, false
	}
	entry, ok := entries[fd]
	if !ok {
		return connEntry{}, false
	}
	return *entry, true
}

// ClearPID drops every tracked entry for pid, called on process exit.
func (t *ConnTracker) ClearPID(pid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pid, pid)
}

// fdMap returns (creating if needed) pid's fd map. Callers must hold mu.
func (t *ConnTracker) fdMap(pid uint32) map[uint32]*connEntry {
	m, ok := t.pid[pid]
	if !ok {
		m = make(map[uint32]*connEntry)
		t.pid[pid] = m
	}
	return m
}

// ensureRoom evicts the oldest entry in pid's window if it's already at
// capacity. Callers must hold mu.
func (t *ConnTracker) ensureRoom(pid uint32) {
	entries, ok := t.pid[pid]
	if !ok || len(entries) < maxEntriesPerPID {
		return
	}
	var oldestFD uint32
	var oldestAt time.Time
	first := true
	for fd, e := range entries {
		if first || e.SeenAt.Before(oldestAt) {
			oldestFD, oldestAt, first = fd, e.SeenAt, false
		}
	}
	delete(entries, oldestFD)
}
