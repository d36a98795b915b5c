// Package query correlates queries the control plane sends to a client
// (over whichever bidirectional transport is in use) with the responses
// that eventually come back, across independent per-query timeouts.
package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Query is a request awaiting a response from a connected client.
type Query struct {
	ID        uuid.UUID
	SessionID string
	Kind      string
	Payload   json.RawMessage
	Timeout   time.Duration
}

// Response answers a previously sent Query by ID. A response whose ID has
// no matching pending query is benign: the waiter may already have timed
// out, and the response is retained for a late GetResponse lookup.
type Response struct {
	ID      uuid.UUID
	Payload json.RawMessage
}

// Stats is a point-in-time snapshot of correlator activity.
type Stats struct {
	PendingCount int
}
