package weaver

import (
	"errors"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Reader pulls raw records off a pinned BPF_MAP_TYPE_RINGBUF map and
// feeds them to a Processor. It owns the ringbuf.Reader's lifecycle.
// Loading and attaching the BPF program that populates the map is the
// sidecar's build-time concern, not this package's.
type Reader struct {
	ring *ringbuf.Reader
	proc *Processor
	log  *log.Entry
}

// NewReader removes the calling process's RLIMIT_MEMLOCK cap (required
// before any BPF map can be loaded) and opens events for reading.
// events is expected to already be loaded and pinned by the sidecar's
// BPF loader.
func NewReader(events *ebpf.Map, proc *Processor) (*Reader, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, trace.Wrap(err, "weaver: removing memlock rlimit")
	}

	ring, err := ringbuf.NewReader(events)
	if err != nil {
		return nil, trace.Wrap(err, "weaver: opening ring buffer reader")
	}

	return &Reader{ring: ring, proc: proc, log: log.WithField("component", "weaver_reader")}, nil
}

// Run consumes records until the reader is closed, handing each one to
// Process. Decode and send failures are logged and counted but never
// stop the loop — one malformed or unroutable record must not take down
// the whole sidecar stream.
func (r *Reader) Run() error {
	for {
		record, err := r.ring.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil
			}
			r.log.WithError(err).Warn("ring buffer read error")
			continue
		}

		if err := r.proc.Process(record.RawSample); err != nil {
			r.log.WithError(err).Debug("record rejected")
		}
	}
}

// Close stops the underlying ring buffer reader, causing a blocked Run
// to return.
func (r *Reader) Close() error {
	return r.ring.Close()
}
