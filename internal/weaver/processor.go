package weaver

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Identity is the fixed weaver/org/owner tuple every event this
// processor emits is stamped with — one Processor serves exactly one
// weaver pod's sidecar stream.
type Identity struct {
	WeaverID    string
	OrgID       string
	OwnerUserID string
}

// OverflowPolicy mirrors the audit pipeline's bounded-channel policy.
type OverflowPolicy string

const (
	OverflowDropNewest OverflowPolicy = "drop_newest"
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowBlock      OverflowPolicy = "block"
)

// Processor decodes raw ring-buffer records, correlates them against
// the DNS cache and connection tracker, applies the path filter, and
// pushes the resulting Events onto Outbound. Processor is the sole
// writer to Outbound.
type Processor struct {
	identity Identity
	dns      *DNSCache
	conns    *ConnTracker
	policy   OverflowPolicy
	clock    clockwork.Clock
	log      *log.Entry

	mu       sync.Mutex
	outbound chan Event

	captured     map[EventType]uint64
	decodeFailed uint64
	sendFailed   uint64
	dropped      uint64
}

// NewProcessor constructs a Processor with the given outbound channel
// capacity and overflow policy.
func NewProcessor(identity Identity, capacity int, policy OverflowPolicy, clock clockwork.Clock) *Processor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy == "" {
		policy = OverflowDropNewest
	}
	return &Processor{
		identity: identity,
		dns:      NewDNSCache(clock, dnsCacheTTL),
		conns:    NewConnTracker(),
		policy:   policy,
		clock:    clock,
		log:      log.WithField("component", "weaver"),
		outbound: make(chan Event, capacity),
		captured: make(map[EventType]uint64),
	}
}

// Outbound returns the channel decoded events are pushed onto.
func (p *Processor) Outbound() <-chan Event {
	return p.outbound
}

// Stats is a point-in-time snapshot of processor counters.
type Stats struct {
	Captured     map[string]uint64
	DecodeFailed uint64
	SendFailed   uint64
	Dropped      uint64
}

// StatsSnapshot reports the processor's current counters.
func (p *Processor) StatsSnapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	captured := make(map[string]uint64, len(p.captured))
	for et, n := range p.captured {
		captured[et.String()] = n
	}
	return Stats{Captured: captured, DecodeFailed: p.decodeFailed, SendFailed: p.sendFailed, Dropped: p.dropped}
}

// Process decodes one raw ring-buffer record and, if it survives
// decoding and the path filter, emits the resulting Event. A record
// shorter than its header is rejected outright; an unknown event type
// is dropped (counted, not logged per-record).
func (p *Processor) Process(raw []byte) error {
	if len(raw) < headerSize {
		p.mu.Lock()
		p.decodeFailed++
		p.mu.Unlock()
		return DecodeTooSmallError{Got: len(raw), Want: headerSize}
	}

	eventType := EventType(binary.LittleEndian.Uint32(raw[0:4]))
	now := p.clock.Now()

	var (
		details    any
		path       string
		isMutation bool
		comm       string
		header     Header
		skip       bool
	)

	switch eventType {
	case typeProcessExec:
		ev, err := decodeProcessExec(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, path, details = ev.Header, ev.Comm, ev.Path, ev

	case typeProcessFork:
		ev, err := decodeProcessFork(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, details = ev.Header, ev

	case typeProcessExit:
		ev, err := decodeProcessExit(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, details = ev.Header, ev.Comm, ev
		p.conns.ClearPID(ev.PID)

	case typeFile:
		ev, err := decodeFile(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, path, details, isMutation = ev.Header, ev.Comm, ev.Path, ev, true

	case typeFileOpen:
		ev, err := decodeFileOpen(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, path, details = ev.Header, ev.Comm, ev.Path, ev

	case typeConnect:
		ev, err := decodeConnect(raw)
		if err != nil {
			return p.failDecode(err)
		}
		hostname := ev.InlineHostname
		if hostname == "" {
			if h, ok := p.dns.Lookup(ev.RemoteAddr); ok {
				hostname = h
			}
		}
		ev.InlineHostname = hostname
		header, comm, details = ev.Header, ev.Comm, ev

	case typeNetworkSocket:
		ev, err := decodeNetworkSocket(raw)
		if err != nil {
			return p.failDecode(err)
		}
		p.conns.RecordSocket(ev.PID, ev, now)
		header, details = ev.Header, ev

	case typeNetworkConnect:
		ev, err := decodeNetworkConnect(raw)
		if err != nil {
			return p.failDecode(err)
		}
		hostname, _ := p.dns.Lookup(ev.RemoteAddr)
		p.conns.RecordConnect(ev.PID, ev.FD, ev.RemoteAddr, ev.Port, hostname, now)
		header, details = ev.Header, ev

	case typeNetworkListen:
		ev, err := decodeNetworkListen(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, details = ev.Header, ev

	case typeNetworkAccept:
		ev, err := decodeNetworkAccept(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, details = ev.Header, ev

	case typeDNSQuery:
		ev, err := decodeDNSQuery(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, details = ev.Header, ev.Comm, ev

	case typeDNSResponse:
		ev, err := decodeDNSResponse(raw)
		if err != nil {
			return p.failDecode(err)
		}
		p.dns.Insert(ev.Addr, ev.Hostname)
		header, comm, details = ev.Header, ev.Comm, ev

	case typePrivilegeChange:
		ev, err := decodePrivilegeChange(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, details = ev.Header, ev

	case typeMemoryExec:
		ev, err := decodeMemoryExec(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, path, details = ev.Header, ev.Comm, ev.Path, ev

	case typeSandboxEscape:
		ev, err := decodeSandboxEscape(raw)
		if err != nil {
			return p.failDecode(err)
		}
		header, comm, path, details = ev.Header, ev.Comm, ev.Path, ev

	default:
		skip = true
	}

	if skip {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return UnknownEventTypeError{EventType: eventType}
	}

	if path != "" && !acceptPath(path, isMutation) {
		return nil
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return p.failDecode(err)
	}

	event := Event{
		WeaverID:    p.identity.WeaverID,
		OrgID:       p.identity.OrgID,
		OwnerUserID: p.identity.OwnerUserID,
		TimestampNs: header.TimestampNs,
		PID:         header.PID,
		TID:         header.TID,
		Comm:        comm,
		EventType:   eventType.String(),
		Details:     detailsJSON,
	}

	p.mu.Lock()
	p.captured[eventType]++
	p.mu.Unlock()

	return p.emit(event)
}

func (p *Processor) failDecode(err error) error {
	p.mu.Lock()
	p.decodeFailed++
	p.mu.Unlock()
	return err
}

// emit pushes event onto Outbound per the configured overflow policy.
func (p *Processor) emit(event Event) error {
	switch p.policy {
	case OverflowBlock:
		p.outbound <- event
		return nil

	case OverflowDropOldest:
		for {
			select {
			case p.outbound <- event:
				return nil
			default:
			}
			select {
			case <-p.outbound:
			default:
			}
		}

	default: // OverflowDropNewest
		select {
		case p.outbound <- event:
			return nil
		default:
			p.mu.Lock()
			p.sendFailed++
			p.mu.Unlock()
			et, _ := parseEventTypeTag(event.EventType)
			return SendFailureError{EventType: et}
		}
	}
}

// parseEventTypeTag is a best-effort reverse lookup from an Event's
// string tag back to its EventType, used only for error reporting.
func parseEventTypeTag(tag string) (EventType, bool) {
	for et := typeProcessExec; et <= typeSandboxEscape; et++ {
		if et.String() == tag {
			return et, true
		}
	}
	return 0, false
}
