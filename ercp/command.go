package ercp

import (
	"fmt"
)

// Built-in command codes of ERCP Basic.
const (
	Ping             byte = 0x00
	Ack              byte = 0x01
	Nack             byte = 0x02
	Reset            byte = 0x03
	Protocol         byte = 0x04
	ProtocolReply    byte = 0x05
	Version          byte = 0x06
	VersionReply     byte = 0x07
	MaxLength        byte = 0x08
	MaxLengthReply   byte = 0x09
	Description      byte = 0x0A
	DescriptionReply byte = 0x0B
	Log              byte = 0xB0
)

// NACK reasons, carried as the single value byte of a Nack frame.
const (
	NackNoReason         byte = 0x00
	NackTooLong          byte = 0x01
	NackInvalidCRC       byte = 0x02
	NackUnknownCommand   byte = 0x03
	NackInvalidArguments byte = 0x04
)

// Component identifiers for the Version command.
const (
	ComponentFirmware    byte = 0x00
	ComponentERCPLibrary byte = 0x01
)

// Protocol version implemented by this package.
const (
	VersionMajor byte = 0
	VersionMinor byte = 1
	VersionPatch byte = 0
)

// MaxValueLength is the largest value a frame can carry, bounded by the one-byte Length field.
const MaxValueLength = 255

// Command is a validated outgoing frame: a code and a value no longer than the limit it was
// built against.
type Command struct {
	code  byte
	value []byte
}

// NewCommand builds a command whose value must fit in a frame.
func NewCommand(code byte, value []byte) (Command, error) {
	return NewCommandWithLimit(code, value, MaxValueLength)
}

// NewCommandWithLimit builds a command whose value must not exceed limit bytes.
// A limit outside [0, MaxValueLength] is clamped to MaxValueLength.
//
// It returns an error wrapping ErrTooLong when the value is too long.
func NewCommandWithLimit(code byte, value []byte, limit int) (Command, error) {
	if limit < 0 || limit > MaxValueLength {
		limit = MaxValueLength
	}

	if len(value) > limit {
		return Command{}, fmt.Errorf("%w: %d bytes, max %d", ErrTooLong, len(value), limit)
	}

	v := make([]byte, len(value))
	copy(v, value)

	return Command{code: code, value: v}, nil
}

// AckCommand returns the Ack command.
func AckCommand() Command {
	return Command{code: Ack}
}

// NackCommand returns a Nack command carrying reason.
func NackCommand(reason byte) Command {
	return Command{code: Nack, value: []byte{reason}}
}

// Code returns the command code.
func (c Command) Code() byte {
	return c.code
}

// Value returns the command value. The caller must not modify it.
func (c Command) Value() []byte {
	return c.value
}

// Frame returns the frame carrying the command.
func (c Command) Frame() Frame {
	return Frame{Code: c.code, Value: c.value}
}

// replyCodes maps built-in requests to the code of their reply.
var replyCodes = map[byte]byte{
	Ping:        Ack,
	Reset:       Ack,
	Protocol:    ProtocolReply,
	Version:     VersionReply,
	MaxLength:   MaxLengthReply,
	Description: DescriptionReply,
}

// Accepts reports whether f can be the reply to c.
//
// A Nack answers any command. Built-in requests accept only their own reply code; custom
// commands accept any frame except a Log notification.
func (c Command) Accepts(f Frame) bool {
	if f.Code == Nack {
		return true
	}

	if want, ok := replyCodes[c.code]; ok {
		return f.Code == want
	}

	return f.Code != Log
}

func (c Command) String() string {
	return fmt.Sprintf("0x%02X[% X]", c.code, c.value)
}

// NackError is a negative acknowledgment received from the peer.
type NackError struct {
	Reason byte
}

func (e *NackError) Error() string {
	return fmt.Sprintf("ercp: NACK received: %s (0x%02X)", nackReasonName(e.Reason), e.Reason)
}

func nackReasonName(reason byte) string {
	switch reason {
	case NackNoReason:
		return "no reason"
	case NackTooLong:
		return "value too long"
	case NackInvalidCRC:
		return "invalid CRC"
	case NackUnknownCommand:
		return "unknown command"
	case NackInvalidArguments:
		return "invalid arguments"
	default:
		return "unknown reason"
	}
}
