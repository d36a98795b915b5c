package weaver

import "fmt"

// DecodeTooSmallError reports a ring-buffer record shorter than the
// fixed layout its event type requires. It's discarded, not retried.
type DecodeTooSmallError struct {
	EventType EventType
	Got       int
	Want      int
}

func (e DecodeTooSmallError) Error() string {
	return fmt.Sprintf("weaver: record for event type %d too small: got %d bytes, want %d", e.EventType, e.Got, e.Want)
}

// UnknownEventTypeError reports a header event_type value with no record
// layout: outside 1..15, which includes the reserved value 16. The
// record is dropped silently at the metrics
// layer (counted, not logged per-event, to avoid log flooding from a
// stale sidecar version).
type UnknownEventTypeError struct {
	EventType EventType
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("weaver: unknown event type %d", e.EventType)
}

// SendFailureError reports that a decoded event could not be placed on
// the outbound channel (it was full and the configured policy doesn't
// block).
type SendFailureError struct {
	EventType EventType
}

func (e SendFailureError) Error() string {
	return fmt.Sprintf("weaver: send failed for event type %d", e.EventType)
}
