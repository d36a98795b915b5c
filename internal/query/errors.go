package query

import "errors"

// ErrTimeout is returned by SendQuery when no response arrives within the
// query's configured timeout. The pending entry is removed exactly once,
// by whichever of the timeout or the response arrives first.
var ErrTimeout = errors.New("query: timed out waiting for response")

// ErrNoResponse is returned by SendQuery when its waiter channel is
// closed before a response or a timeout arrives. Correlator itself has
// no shutdown method and never closes a waiter channel.
var ErrNoResponse = errors.New("query: no response (correlator closed)")
