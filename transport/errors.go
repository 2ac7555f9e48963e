package transport

import "fmt"

// Kind is the abstract error taxonomy the bridge and its transports report
// through. It names a category of failure, not a concrete Go type.
type Kind string

const (
	// KindInvalidConfig means a required config key was missing or
	// malformed.
	KindInvalidConfig Kind = "INVALID_CONFIG"
	// KindUnsupportedTransport means an unknown transport kind was
	// requested.
	KindUnsupportedTransport Kind = "UNSUPPORTED_TRANSPORT"
	// KindTransportCreateFailed means the underlying transport could not
	// be constructed.
	KindTransportCreateFailed Kind = "TRANSPORT_CREATE_FAILED"
	// KindTransportIO means an error was observed on an inbound stream
	// or during a send.
	KindTransportIO Kind = "TRANSPORT_IO"
	// KindTransportClosed means Send was invoked after Close.
	KindTransportClosed Kind = "TRANSPORT_CLOSED"
	// KindReconnectExhausted means a bounded reconnect attempt ceiling
	// was hit.
	KindReconnectExhausted Kind = "RECONNECT_EXHAUSTED"
)

// Error is the concrete error type carrying an abstract Kind, a message,
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewInvalidConfigError(message string, cause error) *Error {
	return newError(KindInvalidConfig, message, cause)
}

func NewUnsupportedTransportError(message string, cause error) *Error {
	return newError(KindUnsupportedTransport, message, cause)
}

func NewTransportCreateFailedError(message string, cause error) *Error {
	return newError(KindTransportCreateFailed, message, cause)
}

func NewTransportIOError(message string, cause error) *Error {
	return newError(KindTransportIO, message, cause)
}

func NewTransportClosedError(message string) *Error {
	return newError(KindTransportClosed, message, nil)
}

func NewReconnectExhaustedError(message string, cause error) *Error {
	return newError(KindReconnectExhausted, message, cause)
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
