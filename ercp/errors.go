package ercp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Sentinel errors of the ERCP Basic engine.
var (
	// ErrTooLong is returned when a command value exceeds the accepted length.
	ErrTooLong = errors.New("ercp: value too long")
	// ErrTimeout is returned when no complete frame arrives before the reply timeout.
	ErrTimeout = errors.New("ercp: reply timeout")
	// ErrInvalidFrame is returned for malformed frames (bad length, missing EOT).
	ErrInvalidFrame = errors.New("ercp: invalid frame")
	// ErrInvalidCRC is returned when the frame CRC does not match its content.
	ErrInvalidCRC = errors.New("ercp: CRC mismatch")
	// ErrConnClosed is returned once the connection or the underlying port is closed.
	ErrConnClosed = errors.New("ercp: connection closed")

	// errFrameTimeout reports an inter-byte gap longer than the frame timeout.
	// The partial frame is dropped and the receiver starts over.
	errFrameTimeout = errors.New("ercp: frame timeout")
)

// IOError is a read or write failure of the underlying port.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ercp: %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// isClosedError reports whether a port error means the stream is gone for good.
func isClosedError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}
