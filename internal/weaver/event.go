package weaver

import "encoding/json"

// Event is the language-neutral, decoded-and-enriched record pushed onto
// the outbound channel — everything downstream of this package only
// ever sees this shape, never the raw kernel bytes.
type Event struct {
	WeaverID    string          `json:"weaver_id"`
	OrgID       string          `json:"org_id"`
	OwnerUserID string          `json:"owner_user_id"`
	TimestampNs uint64          `json:"timestamp_ns"`
	PID         uint32          `json:"pid"`
	TID         uint32          `json:"tid"`
	Comm        string          `json:"comm"`
	EventType   string          `json:"event_type"`
	Details     json.RawMessage `json:"details"`
}
