package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"time"

	"github.com/gravitational/trace"
)

// StreamSink delivers one compact JSON object per message over a raw
// UDP, TCP, or TLS socket.
type StreamSink struct {
	baseSink
	target      string
	protocol    string
	dialTimeout time.Duration
	tlsConf     *tls.Config
}

func NewStreamSink(name, target, protocol string, minSeverity Severity, dialTimeout time.Duration, tlsConf *tls.Config) *StreamSink {
	return &StreamSink{
		baseSink:    baseSink{name: name, minSeverity: minSeverity},
		target:      target,
		protocol:    protocol,
		dialTimeout: dialTimeout,
		tlsConf:     tlsConf,
	}
}

type streamEvent struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	EventType    EventType       `json:"event_type"`
	Severity     string          `json:"severity"`
	ActorUserID  string          `json:"actor_user_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Action       string          `json:"action"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	TraceID      string          `json:"trace_id,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
}

func toStreamEvent(e Event) streamEvent {
	se := streamEvent{
		ID:           e.ID.String(),
		Timestamp:    e.Timestamp,
		EventType:    e.EventType,
		Severity:     e.Severity.String(),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Action:       e.Action,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Details:      e.Details,
		TraceID:      e.TraceID,
		RequestID:    e.RequestID,
	}
	if e.ActorUserID != nil {
		se.ActorUserID = e.ActorUserID.String()
	}
	return se
}

func (s *StreamSink) Deliver(ctx context.Context, batch []Event) error {
	network := s.protocol
	if s.protocol == "tls" {
		network = "tcp"
	}
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.Dial(network, s.target)
	if err != nil {
		return &SinkUnavailableError{Sink: s.name}
	}
	defer conn.Close()

	if s.protocol == "tls" {
		tlsConn := tls.Client(conn, s.tlsConf)
		if err := tlsConn.Handshake(); err != nil {
			return &SinkUnavailableError{Sink: s.name}
		}
		conn = tlsConn
	}

	enc := json.NewEncoder(conn)
	for _, e := range batch {
		if err := enc.Encode(toStreamEvent(e)); err != nil {
			return trace.Wrap(&SinkFormatError{Sink: s.name, Detail: err.Error()})
		}
	}
	return nil
}
