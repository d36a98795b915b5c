package config

import "fmt"

// ErrorKind classifies a configuration failure.
type ErrorKind string

const (
	// KindMissing indicates a required key had no value from any source.
	KindMissing ErrorKind = "missing"
	// KindInvalidValue indicates a key's value failed a semantic check
	// (range, enum membership).
	KindInvalidValue ErrorKind = "invalid_value"
	// KindParse indicates a key's raw text could not be parsed into its
	// typed representation.
	KindParse ErrorKind = "parse"
	// KindValidation indicates a cross-field invariant was violated.
	KindValidation ErrorKind = "validation"
)

// Error reports a configuration problem, citing the key path that caused
// it. It is always wrapped with trace.Wrap before leaving this package so
// callers retain a traceback alongside the structured detail.
type Error struct {
	Key    string
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("config: %s: %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("config: %s: %s: %s", e.Kind, e.Key, e.Detail)
}

func missing(key string) *Error {
	return &Error{Key: key, Kind: KindMissing}
}

func invalid(key, detail string) *Error {
	return &Error{Key: key, Kind: KindInvalidValue, Detail: detail}
}

func parseErr(key, detail string) *Error {
	return &Error{Key: key, Kind: KindParse, Detail: detail}
}

func validationErr(key, detail string) *Error {
	return &Error{Key: key, Kind: KindValidation, Detail: detail}
}
