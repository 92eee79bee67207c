// ABOUTME: Typed error taxonomy shared by client, server, and supervisor.
// ABOUTME: Errors cross the wire as {kind, message} and round-trip losslessly.

package protocol

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure in the taxonomy. Kinds are part of the
// wire contract and must stay stable.
type Kind string

const (
	KindSpawnError      Kind = "SpawnError"
	KindResourceLimit   Kind = "ResourceLimitExceeded"
	KindNotFound        Kind = "NotFound"
	KindConnectionError Kind = "ConnectionError"
	KindTimeout         Kind = "Timeout"
	KindProtocolError   Kind = "ProtocolError"
	KindUnsupported     Kind = "Unsupported"
	KindUnauthorized    Kind = "Unauthorized"
	KindInternal        Kind = "Internal"
)

// Error is a typed protocol error. It is the only error type that crosses
// the wire; everything else is flattened to KindInternal.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a typed error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, or KindInternal if the chain
// contains no typed protocol error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// WireError is the JSON shape of an error inside a response envelope.
type WireError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ToWire converts any error into its wire form.
func ToWire(err error) *WireError {
	var pe *Error
	if errors.As(err, &pe) {
		return &WireError{Kind: pe.Kind, Message: pe.Message}
	}
	return &WireError{Kind: KindInternal, Message: err.Error()}
}

// Err converts a wire error back into a typed error. Unknown kinds collapse
// to KindInternal so an old client never misclassifies a new failure as
// something retryable.
func (w *WireError) Err() error {
	switch w.Kind {
	case KindSpawnError, KindResourceLimit, KindNotFound, KindConnectionError,
		KindTimeout, KindProtocolError, KindUnsupported, KindUnauthorized, KindInternal:
		return &Error{Kind: w.Kind, Message: w.Message}
	}
	return &Error{Kind: KindInternal, Message: fmt.Sprintf("[%s] %s", w.Kind, w.Message)}
}
