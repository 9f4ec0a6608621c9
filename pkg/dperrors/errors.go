// Package dperrors defines the error taxonomy shared by the ingestion and
// query pipelines.
//
// Every fatal or state-level failure surfaced by this module is an *Error
// carrying one of the Kind values below. Per-message outcomes (a server
// rejecting one ingestion request, say) are never reported through this
// type — they are recorded as data in the caller-visible outcome records
// instead, so that one bad row in a batch never aborts the batch.
package dperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that want to branch on failure mode
// without string matching.
type Kind int

const (
	// KindUnknown is the zero value and should never be produced deliberately.
	KindUnknown Kind = iota

	// KindConfiguration marks invalid options or a forbidden state change
	// attempted while a component is active.
	KindConfiguration

	// KindState marks an operation invoked in the wrong lifecycle state,
	// e.g. ingest() after shutdown has begun.
	KindState

	// KindConsistency marks a structural invariant violation: mismatched
	// column length, a duplicate column name, a duplicate source within a
	// correlated block.
	KindConsistency

	// KindOverlap marks two sampling blocks whose timebases overlap.
	KindOverlap

	// KindOrder marks a non-monotonic block ordering.
	KindOrder

	// KindClosed marks an operation attempted against a buffer or channel
	// that has already reached its Closed state.
	KindClosed

	// KindInterrupted marks a blocking wait that was cancelled
	// cooperatively (context cancellation or deadline).
	KindInterrupted

	// KindTransport wraps a gRPC/transport-level failure.
	KindTransport

	// KindRejected marks a per-message server-side rejection. Carried in
	// outcome records; not normally returned from a blocking call, but
	// modeled here so a single Error type can represent it when needed.
	KindRejected

	// KindTimeout marks a blocking operation that exceeded a
	// caller-supplied deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindState:
		return "state"
	case KindConsistency:
		return "consistency"
	case KindOverlap:
		return "overlap"
	case KindOrder:
		return "order"
	case KindClosed:
		return "closed"
	case KindInterrupted:
		return "interrupted"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type raised by this module's fatal paths.
type Error struct {
	Kind            Kind
	Message         string
	Cause           error
	ClientRequestID uint64
	HasRequestID    bool
}

func (e *Error) Error() string {
	if e.HasRequestID {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (request %d): %v", e.Kind, e.Message, e.ClientRequestID, e.Cause)
		}
		return fmt.Sprintf("%s: %s (request %d)", e.Kind, e.Message, e.ClientRequestID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, dperrors.Closed) style kind checks via the
// sentinel values below.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Message == ""
}

func new(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Configuration builds a KindConfiguration error.
func Configuration(msg string) *Error { return new(KindConfiguration, msg, nil) }

// Configurationf builds a KindConfiguration error with formatting.
func Configurationf(format string, args ...interface{}) *Error {
	return new(KindConfiguration, fmt.Sprintf(format, args...), nil)
}

// State builds a KindState error.
func State(msg string) *Error { return new(KindState, msg, nil) }

// Statef builds a KindState error with formatting.
func Statef(format string, args ...interface{}) *Error {
	return new(KindState, fmt.Sprintf(format, args...), nil)
}

// Consistency builds a KindConsistency error.
func Consistency(msg string) *Error { return new(KindConsistency, msg, nil) }

// Consistencyf builds a KindConsistency error with formatting.
func Consistencyf(format string, args ...interface{}) *Error {
	return new(KindConsistency, fmt.Sprintf(format, args...), nil)
}

// Overlap builds a KindOverlap error.
func Overlap(msg string) *Error { return new(KindOverlap, msg, nil) }

// Order builds a KindOrder error.
func Order(msg string) *Error { return new(KindOrder, msg, nil) }

// Closed is the bare KindClosed sentinel compared against via errors.Is;
// ClosedMsg builds a KindClosed error carrying a message.
var Closed = new(KindClosed, "", nil)

// ClosedMsg builds a KindClosed error carrying a message.
func ClosedMsg(msg string) *Error { return new(KindClosed, msg, nil) }

// Interrupted builds a KindInterrupted error wrapping the cancellation cause.
func Interrupted(cause error) *Error { return new(KindInterrupted, "operation cancelled", cause) }

// Transport wraps a transport-level failure.
func Transport(cause error) *Error { return new(KindTransport, "transport failure", cause) }

// TransportFor wraps a transport-level failure that is associated with a
// specific client-request-id.
func TransportFor(id uint64, cause error) *Error {
	e := new(KindTransport, "transport failure", cause)
	e.ClientRequestID = id
	e.HasRequestID = true
	return e
}

// Timeout builds a KindTimeout error.
func Timeout(msg string) *Error { return new(KindTimeout, msg, nil) }

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
