// Package secret provides a wrapper type that keeps sensitive values out of
// logs, error messages, and debug output.
package secret

import (
	"encoding/json"
)

// Redacted is the literal text every Secret renders as.
const Redacted = "[REDACTED]"

// String wraps a string that must never be printed, logged, or serialized
// in the clear. The zero value is an empty secret.
//
// The value is held as a byte slice rather than a string so that Zero can
// scrub it in place — Go strings are immutable and copy-on-convert, so a
// string-backed wrapper could never actually overwrite its own memory.
//
// String intentionally has no exported fields: the only way to recover the
// underlying value is Expose, so accidental leaks through struct literals
// or reflection-based encoders are caught at compile time (or, for JSON,
// rendered as the redacted placeholder instead of the value).
type String struct {
	value []byte
	set   bool
}

// New wraps v as a secret.
func New(v string) String {
	return String{value: []byte(v), set: true}
}

// Expose returns the wrapped value. Callers must not log or persist the
// result anywhere other than its intended destination (e.g. a signing
// operation or an outbound request header).
func (s String) Expose() string {
	return string(s.value)
}

// IsZero reports whether the secret was ever assigned a value.
func (s String) IsZero() bool {
	return !s.set
}

// String implements fmt.Stringer and always renders the placeholder.
func (s String) String() string {
	return Redacted
}

// GoString implements fmt.GoStringer so %#v also redacts.
func (s String) GoString() string {
	return "secret.String(" + Redacted + ")"
}

// MarshalJSON renders the placeholder. Secrets are never serialized in the
// clear; a component that genuinely needs to transmit the raw value (e.g.
// constructing an HTTP Authorization header) must call Expose explicitly
// at the point of use rather than relying on JSON encoding.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(Redacted)
}

// UnmarshalJSON accepts a plain JSON string and wraps it transparently, so
// a secret field can be populated straight from a config file or env value.
func (s *String) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = New(raw)
	return nil
}

// Equal reports whether two secrets wrap the same value. Comparison is by
// value, not by reference.
func (s String) Equal(other String) bool {
	return string(s.value) == string(other.value) && s.set == other.set
}

// Zero overwrites the backing memory with zero bytes and clears the
// wrapper. Best-effort: copies made via Expose before Zero is called are
// unaffected, and the Go runtime may have relocated or copied the backing
// array during GC, but this removes the primary copy promptly instead of
// waiting on garbage collection.
func (s *String) Zero() {
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
	s.set = false
}
