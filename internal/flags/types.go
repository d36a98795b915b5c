// Package flags implements feature-flag evaluation context hashing for
// exposure-log deduplication, and a per-(org, environment) broadcaster
// that pushes flag mutation events to connected SDK clients.
package flags

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// EvaluationContext is the set of fields an SDK evaluates a flag
// against. Attributes is an open bag of caller-supplied key/value pairs
// (e.g. plan tier, cohort); its insertion order never affects the hash.
type EvaluationContext struct {
	UserID     string
	OrgID      string
	SessionID  string
	Environment string
	Attributes map[string]any
	GeoCountry string
	GeoRegion  string
	GeoCity    string
}

// Hash reduces (flagKey, ctx) to a stable SHA-256 hex digest: equal
// contexts hash equal regardless of Attributes iteration order; a
// different flagKey always changes the hash since it's folded into the
// canonical stream first.
func (c EvaluationContext) Hash(flagKey string) string {
	h := sha256.New()

	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{'|'})
	}

	write(flagKey)
	write(c.UserID)
	write(c.OrgID)
	write(c.SessionID)
	write(c.Environment)

	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		valJSON, _ := json.Marshal(c.Attributes[k])
		write(k + "=" + string(valJSON))
	}

	write(c.GeoCountry)
	write(c.GeoRegion)
	write(c.GeoCity)

	return hex.EncodeToString(h.Sum(nil))
}

// Event is pushed to subscribers: an SSE-shaped {type, data} pair.
type Event struct {
	Type string
	Data json.RawMessage
}

// HeartbeatEvent is broadcast on every channel at the configured
// cadence to keep SDK connections alive and detect dead ones.
var HeartbeatEvent = Event{Type: "heartbeat", Data: json.RawMessage(`{}`)}

// Stats is the broadcaster's aggregate snapshot.
type Stats struct {
	ChannelCount     int
	TotalReceivers   int
	TotalEventsSent  int64
	TotalConnections int64
}
