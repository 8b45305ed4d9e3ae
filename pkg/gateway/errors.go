package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a gateway operation can report.
type ErrorKind int

const (
	// KindInternal is an invariant violation inside the gateway.
	// Fatal to the current request only; always logged.
	KindInternal ErrorKind = iota

	// KindValidation is a malformed request. Never retried.
	KindValidation

	// KindRateLimited means admission was denied by a token bucket.
	// The caller may retry after a delay of its choosing.
	KindRateLimited

	// KindPermissionDenied means the agent lacks the read or write grant
	// for the topic.
	KindPermissionDenied

	// KindTopicNotFound means the referenced topic has no schema entry.
	KindTopicNotFound

	// KindSchemaMismatch means record fields are missing or type-incompatible
	// with the topic descriptor.
	KindSchemaMismatch

	// KindTransport means the underlying mesh call failed. Retryable by the
	// caller; never retried by the gateway itself.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindRateLimited:
		return "rate_limit_exceeded"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTopicNotFound:
		return "topic_not_found"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindTransport:
		return "transport_error"
	default:
		return "internal_error"
	}
}

// Retryable reports whether a caller may reasonably retry the request.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransport
}

// Error is the typed failure every gateway operation reports. It carries
// enough context for the caller to act on: the kind, the operation and
// agent involved, the topic, and for schema mismatches the offending field.
type Error struct {
	Kind  ErrorKind
	Op    string // operation name: read, write, subscribe, ...
	Agent string // agent identity, when the request was bound to one
	Topic string
	Field string // offending field name for KindSchemaMismatch
	Msg   string
	Err   error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s %q field %q: %s", e.Kind, e.Op, e.Topic, e.Field, msg)
	case e.Topic != "":
		return fmt.Sprintf("%s: %s %q: %s", e.Kind, e.Op, e.Topic, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
}

// Unwrap returns the wrapped cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err. Errors that are not a gateway
// *Error (including nil wrapping mistakes) classify as KindInternal.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}
