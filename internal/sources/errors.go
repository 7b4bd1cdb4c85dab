package sources

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCapabilityNotSupported matches CapabilityNotSupportedError. It is an
	// expected outcome, never a transport failure.
	ErrCapabilityNotSupported = errors.New("capability not supported")

	// ErrTransport matches every TransportError
	ErrTransport = errors.New("transport error")

	// ErrLocal matches every LocalError
	ErrLocal = errors.New("local source error")

	// ErrNotFound matches transport and local errors for missing resources
	ErrNotFound = errors.New("not found")
)

// CapabilityNotSupportedError reports an operation the data type or the
// source type behind it does not offer.
type CapabilityNotSupportedError struct {
	DataType   string
	SourceType string
	Operation  string
}

func (e *CapabilityNotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported for data type %q backed by %s",
		e.Operation, e.DataType, e.SourceType)
}

// Is reports whether target is ErrCapabilityNotSupported.
func (*CapabilityNotSupportedError) Is(target error) bool {
	return target == ErrCapabilityNotSupported
}

// TransportErrorKind classifies remote failures
type TransportErrorKind string

// Transport error kinds
const (
	KindConnectivity   TransportErrorKind = "connectivity"
	KindAuthentication TransportErrorKind = "authentication"
	KindRateLimit      TransportErrorKind = "rate-limit"
	KindNotFound       TransportErrorKind = "not-found"
	KindOther          TransportErrorKind = "other"
)

// KindForStatus maps an HTTP status to a transport error kind. A zero
// status means no response was received.
func KindForStatus(status int) TransportErrorKind {
	switch {
	case status == 0:
		return KindConnectivity
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// TransportError wraps a failure talking to a remote provider. Nothing in
// this package retries; callers decide.
type TransportError struct {
	Source     string
	Operation  string
	Kind       TransportErrorKind
	StatusCode int
	// Hint is extra advice for the user, e.g. VPN requirements
	Hint string
	Err  error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: %s failed (%s)", e.Source, e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport, and ErrNotFound for not-found failures.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport || (target == ErrNotFound && e.Kind == KindNotFound)
}

// newTransportError builds a TransportError classified from status.
func newTransportError(source, operation string, status int, err error) *TransportError {
	return &TransportError{
		Source:     source,
		Operation:  operation,
		Kind:       KindForStatus(status),
		StatusCode: status,
		Err:        err,
	}
}

// LocalError wraps a filesystem or local git failure.
type LocalError struct {
	Source    string
	Operation string
	Path      string
	Err       error
	notFound  bool
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Source, e.Operation, e.Path, e.Err)
}

func (e *LocalError) Unwrap() error { return e.Err }

// Is matches ErrLocal, and ErrNotFound for missing paths or revisions.
func (e *LocalError) Is(target error) bool {
	return target == ErrLocal || (target == ErrNotFound && e.notFound)
}
