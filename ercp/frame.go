package ercp

import (
	"bytes"
	"fmt"

	"github.com/sigurn/crc8"
)

// EOT terminates every frame.
const EOT byte = 0x04

// framePrefix starts every ERCP Basic frame.
var framePrefix = []byte("ERCPB")

// frameOverhead is the number of bytes around the value: prefix, type, length, CRC and EOT.
const frameOverhead = 5 + 1 + 1 + 1 + 1

var crcTable = crc8.MakeTable(crc8.CRC8)

// Frame is a decoded ERCP Basic frame.
type Frame struct {
	Code  byte
	Value []byte
}

// NackError returns the NACK carried by f, or nil when f is not a Nack frame.
// A Nack frame without value is reported with NackNoReason.
func (f Frame) NackError() *NackError {
	if f.Code != Nack {
		return nil
	}

	if len(f.Value) == 0 {
		return &NackError{Reason: NackNoReason}
	}

	return &NackError{Reason: f.Value[0]}
}

// CRC computes the CRC-8 over Type, Length and Value.
func (f Frame) CRC() byte {
	crc := crc8.Init(crcTable)
	crc = crc8.Update(crc, []byte{f.Code, byte(len(f.Value))}, crcTable)
	crc = crc8.Update(crc, f.Value, crcTable)

	return crc8.Complete(crc, crcTable)
}

// Pack serializes the frame to its wire format:
//
//	[Prefix(5)][Type(1)][Length(1)][Value(0–255)][CRC(1)][EOT(1)]
//
// The value must not exceed MaxValueLength; Command guarantees it.
func (f Frame) Pack() []byte {
	buf := make([]byte, 0, frameOverhead+len(f.Value))
	buf = append(buf, framePrefix...)
	buf = append(buf, f.Code, byte(len(f.Value)))
	buf = append(buf, f.Value...)
	buf = append(buf, f.CRC(), EOT)

	return buf
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%02X[% X]", f.Code, f.Value)
}

// ParseFrame decodes a complete wire frame as produced by Pack.
//
// It validates the prefix, the length, the CRC and the trailing EOT.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < frameOverhead {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than a frame", ErrInvalidFrame, len(data))
	}

	if !bytes.HasPrefix(data, framePrefix) {
		return Frame{}, fmt.Errorf("%w: missing ERCPB prefix", ErrInvalidFrame)
	}

	length := int(data[len(framePrefix)+1])
	if len(data) != frameOverhead+length {
		return Frame{}, fmt.Errorf("%w: length byte %d does not match %d bytes of data",
			ErrInvalidFrame, length, len(data))
	}

	valueStart := len(framePrefix) + 2
	f := Frame{Code: data[len(framePrefix)]}
	if length > 0 {
		f.Value = make([]byte, length)
		copy(f.Value, data[valueStart:valueStart+length])
	}

	if wire, calc := data[valueStart+length], f.CRC(); wire != calc {
		return Frame{}, fmt.Errorf("%w: wire=0x%02X, computed=0x%02X", ErrInvalidCRC, wire, calc)
	}

	if data[len(data)-1] != EOT {
		return Frame{}, fmt.Errorf("%w: missing EOT", ErrInvalidFrame)
	}

	return f, nil
}
