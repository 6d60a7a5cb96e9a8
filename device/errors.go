package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-ercp/ercp"
)

// Error kinds. Every error returned by a Session operation is an *Error whose Kind is one of
// these, so errors.Is(err, ErrProtocol) selects a whole class of failures.
var (
	// ErrTransport reports a failure of the link: port I/O error or closed connection.
	ErrTransport = errors.New("transport error")
	// ErrProtocol reports a NACK, a malformed reply or a reply timeout.
	ErrProtocol = errors.New("protocol error")
	// ErrConstruction reports a command that could not be built: value too long or bad hex.
	ErrConstruction = errors.New("invalid command")
	// ErrUnexpectedFrame reports a well-formed frame of the wrong type.
	ErrUnexpectedFrame = errors.New("unexpected frame")
	// ErrEncoding reports a text value that is not valid UTF-8.
	ErrEncoding = errors.New("invalid text encoding")
	// ErrCanceled reports an operation interrupted by its context.
	ErrCanceled = errors.New("canceled")
)

// ErrInvalidReply reports a reply of the expected type with a malformed value.
var ErrInvalidReply = errors.New("invalid reply value")

// Error is the error returned by Session operations.
type Error struct {
	// Op is the operation name, e.g. "ping".
	Op string
	// Kind is one of the Err* kind sentinels.
	Kind error
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// UnexpectedFrameError describes a frame of the wrong type.
type UnexpectedFrameError struct {
	Got      byte
	Expected byte
}

func (e *UnexpectedFrameError) Error() string {
	return fmt.Sprintf("got frame 0x%02X, expected 0x%02X", e.Got, e.Expected)
}

// IsTimeout reports whether err is a reply timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ercp.ErrTimeout)
}

// KindOf returns the kind of err, or nil when err is not a Session error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return nil
}

func newError(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// classify wraps an engine error with the kind it belongs to.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var nack *ercp.NackError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(op, ErrCanceled, err)

	case errors.Is(err, ercp.ErrTooLong):
		return newError(op, ErrConstruction, err)

	case errors.Is(err, ercp.ErrTimeout),
		errors.Is(err, ercp.ErrInvalidFrame),
		errors.Is(err, ercp.ErrInvalidCRC),
		errors.As(err, &nack):
		return newError(op, ErrProtocol, err)

	default:
		return newError(op, ErrTransport, err)
	}
}
