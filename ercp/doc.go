// Package ercp provides an implementation of the ERCP Basic framing protocol running over
// any byte stream, typically a serial port.
//
// ERCP Basic is a half-duplex command/reply protocol between a host and an embedded
// device. Every request sent by the host is answered by exactly one reply frame; the device
// may also send unsolicited notifications (e.g. log messages) that the host acknowledges.
//
// # Frame Format
//
// A frame on the wire is:
//
//	'E' 'R' 'C' 'P' 'B' | Type(1) | Length(1) | Value(0–255) | CRC(1) | EOT(0x04)
//
// The CRC is a CRC-8 (polynomial 0x07, initial value 0) computed over Type, Length and
// Value.
//
// # Error Recovery
//
// A receiver that detects a CRC mismatch answers with NACK(InvalidCRC) and keeps listening.
// A sender that gets NACK(InvalidCRC) as a reply resends the command, up to the configured
// retry limit. Frames that stall for longer than the inter-byte frame timeout, or that lack
// the trailing EOT, are discarded silently.
//
// A reply always belongs to the most recent request: pending input is discarded before a
// command is written, and frames that cannot answer it, such as the late reply to a request
// that already timed out, are dropped.
//
// # Timeouts
//
// Two timers are involved:
//
//   - Frame timeout: maximum gap between two bytes of the same frame.
//   - Reply timeout: per call, the maximum wait for a complete frame. Zero ([NoTimeout])
//     means wait until the context is done or the connection is closed.
package ercp
