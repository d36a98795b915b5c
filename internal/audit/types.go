// Package audit implements Loom's bounded, multi-sink audit event
// pipeline: fire-and-forget ingestion, severity filtering, pluggable
// delivery sinks, and a retention daemon.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity orders event importance for both pipeline-level and
// per-sink filtering. Values increase in severity.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityDebug:    "debug",
	SeverityInfo:     "info",
	SeverityWarn:     "warn",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

var severityValues = map[string]Severity{
	"debug":    SeverityDebug,
	"info":     SeverityInfo,
	"warn":     SeverityWarn,
	"error":    SeverityError,
	"critical": SeverityCritical,
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity resolves a config string into a Severity. Unknown names
// fall back to SeverityInfo, matching the pipeline's documented default.
func ParseSeverity(s string) Severity {
	if v, ok := severityValues[s]; ok {
		return v
	}
	return SeverityInfo
}

// EventType enumerates the audit taxonomy. The source distinguishes
// roughly sixty kinds; the ones below are the set this implementation's
// components actually emit, organized by the subsystem that produces
// them. Unlisted kinds can be added without touching existing callers.
type EventType string

const (
	EventUserLogin            EventType = "user.login"
	EventUserLogout           EventType = "user.logout"
	EventAccessTokenIssued    EventType = "access_token.issued"
	EventAccessTokenRevoked   EventType = "access_token.revoked"
	EventMagicLinkRequested   EventType = "magic_link.requested"
	EventMagicLinkConsumed    EventType = "magic_link.consumed"
	EventDeviceCodeCompleted  EventType = "device_code.completed"
	EventOAuthStateConsumed   EventType = "oauth_state.consumed"
	EventJobFailed            EventType = "job.failed"
	EventJobRetried           EventType = "job.retried"
	EventFlagEvaluated        EventType = "flag.evaluated"
	EventWeaverSandboxEscape  EventType = "weaver.sandbox_escape"
	EventWeaverPrivilegeChange EventType = "weaver.privilege_change"
	EventKeyRotated           EventType = "key.rotated"
	EventSVIDIssued           EventType = "svid.issued"
	EventAuditRetentionRun    EventType = "audit.retention_run"
	EventAuditSinkUnavailable EventType = "audit.sink_unavailable"
)

// defaultSeverity maps an event type to its default severity; a caller
// may override per-record via Event.Severity.
var defaultSeverity = map[EventType]Severity{
	EventUserLogin:             SeverityInfo,
	EventUserLogout:            SeverityInfo,
	EventAccessTokenIssued:     SeverityInfo,
	EventAccessTokenRevoked:    SeverityWarn,
	EventMagicLinkRequested:    SeverityInfo,
	EventMagicLinkConsumed:     SeverityInfo,
	EventDeviceCodeCompleted:   SeverityInfo,
	EventOAuthStateConsumed:    SeverityInfo,
	EventJobFailed:             SeverityError,
	EventJobRetried:            SeverityWarn,
	EventFlagEvaluated:         SeverityDebug,
	EventWeaverSandboxEscape:   SeverityCritical,
	EventWeaverPrivilegeChange: SeverityWarn,
	EventKeyRotated:            SeverityWarn,
	EventSVIDIssued:            SeverityInfo,
	EventAuditRetentionRun:     SeverityInfo,
	EventAuditSinkUnavailable:  SeverityError,
}

// DefaultSeverityFor returns the default severity for et, or
// SeverityInfo if et is not in the known table.
func DefaultSeverityFor(et EventType) Severity {
	if sev, ok := defaultSeverity[et]; ok {
		return sev
	}
	return SeverityInfo
}

// Event is a single audit record.
type Event struct {
	ID                  uuid.UUID
	Timestamp           time.Time
	EventType           EventType
	Severity            Severity
	ActorUserID         *uuid.UUID
	ImpersonatingUserID *uuid.UUID
	ResourceType        string
	ResourceID          string
	Action              string
	IPAddress           string
	UserAgent           string
	Details             json.RawMessage
	TraceID             string
	SpanID              string
	RequestID           string
}

// NewEvent constructs an Event with a fresh ID and the event type's
// default severity, which the caller may override before Emit.
func NewEvent(now time.Time, et EventType, action string) Event {
	return Event{
		ID:        uuid.New(),
		Timestamp: now,
		EventType: et,
		Severity:  DefaultSeverityFor(et),
		Action:    action,
	}
}

// Filter describes a query over stored events.
type Filter struct {
	EventType    EventType
	ActorUserID  *uuid.UUID
	ResourceType string
	ResourceID   string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// MaxQueryLimit is the hard cap on Filter.Limit regardless of what a
// caller requests.
const MaxQueryLimit = 1000

// NormalizeLimit clamps limit into (0, MaxQueryLimit], defaulting a
// non-positive value to MaxQueryLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
