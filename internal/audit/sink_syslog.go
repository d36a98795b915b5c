package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// syslogSeverityCode maps a Severity onto an RFC 5424 severity code.
// Facility is left to configuration; only the severity half of PRI
// varies per event.
func syslogSeverityCode(s Severity) int {
	switch s {
	case SeverityDebug:
		return 7
	case SeverityInfo:
		return 6
	case SeverityWarn:
		return 4
	case SeverityError:
		return 3
	case SeverityCritical:
		return 2
	default:
		return 6
	}
}

var facilityCodes = map[string]int{
	"kern": 0, "user": 1, "mail": 2, "daemon": 3, "auth": 4, "syslog": 5,
	"local0": 16, "local1": 17, "local2": 18, "local3": 19,
	"local4": 20, "local5": 21, "local6": 22, "local7": 23,
}

// SyslogSink delivers one RFC 5424 frame per event over UDP, TCP, or
// TLS, optionally wrapping the structured body as CEF.
type SyslogSink struct {
	baseSink
	target   string
	protocol string // udp, tcp, tls
	facility string
	appName  string
	cef      bool
	dialer   func(network, addr string) (net.Conn, error)
	tlsConf  *tls.Config
}

// NewSyslogSink constructs a SyslogSink. dialTimeout bounds the
// connection attempt made on every Deliver call; syslog sinks are not
// held open between batches since UDP has no persistent connection and
// TCP/TLS reconnection is simpler to reason about than keep-alive here.
func NewSyslogSink(name, target, protocol, facility, appName string, cef bool, minSeverity Severity, dialTimeout time.Duration, tlsConf *tls.Config) *SyslogSink {
	network := protocol
	if protocol == "tls" {
		network = "tcp"
	}
	return &SyslogSink{
		baseSink: baseSink{name: name, minSeverity: minSeverity},
		target:   target,
		protocol: protocol,
		facility: facility,
		appName:  appName,
		cef:      cef,
		tlsConf:  tlsConf,
		dialer: func(_, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.Dial(network, addr)
		},
	}
}

func (s *SyslogSink) connect() (net.Conn, error) {
	conn, err := s.dialer(s.protocol, s.target)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if s.protocol == "tls" {
		tlsConn := tls.Client(conn, s.tlsConf)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, trace.Wrap(err)
		}
		return tlsConn, nil
	}
	return conn, nil
}

func (s *SyslogSink) frame(e Event) string {
	pri := facilityCodes[s.facility]*8 + syslogSeverityCode(e.Severity)
	body := formatCompact(e)
	if s.cef {
		body = formatCEF(e)
	}
	// RFC 5424: <PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID STRUCTURED-DATA MSG
	return fmt.Sprintf("<%d>1 %s - %s %s - - %s\n",
		pri, e.Timestamp.UTC().Format(time.RFC3339Nano), s.appName, e.ID, body)
}

func (s *SyslogSink) Deliver(ctx context.Context, batch []Event) error {
	conn, err := s.connect()
	if err != nil {
		return &SinkUnavailableError{Sink: s.name}
	}
	defer conn.Close()

	var b strings.Builder
	for _, e := range batch {
		b.WriteString(s.frame(e))
	}
	if _, err := conn.Write([]byte(b.String())); err != nil {
		return &SinkUnavailableError{Sink: s.name}
	}
	return nil
}

func formatCompact(e Event) string {
	return fmt.Sprintf("event_type=%s severity=%s action=%q resource=%s/%s",
		e.EventType, e.Severity, e.Action, e.ResourceType, e.ResourceID)
}

// formatCEF renders an event in ArcSight Common Event Format, the
// optional alternative body encoding syslog and file sinks may use.
func formatCEF(e Event) string {
	return fmt.Sprintf("CEF:0|Loom|ControlPlane|1.0|%s|%s|%d|act=%s rt=%s",
		e.EventType, e.Action, syslogSeverityCode(e.Severity)*10, e.Action, e.Timestamp.UTC().Format(time.RFC3339))
}
