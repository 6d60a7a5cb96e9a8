package ercp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ercp/internal/pool"
)

// errValueTooLong reports a frame whose declared length exceeds maxValueLength.
var errValueTooLong = errors.New("ercp: received value too long")

// readFrame returns the next valid frame received before deadline.
//
// Corrupted frames are answered and skipped: a CRC mismatch is answered with
// NACK(InvalidCRC), an oversized value with NACK(TooLong). Stalled frames and frames without
// EOT are dropped silently.
func (c *Conn) readFrame(ctx context.Context, deadline time.Time) (Frame, error) {
	for {
		frame, err := c.scanFrame(ctx, deadline)

		switch {
		case err == nil:
			c.metrics.incFrameRecvCount()
			c.logger.Debug("ercp: frame received", "frame", frame)

			return frame, nil

		case errors.Is(err, ErrInvalidCRC):
			c.metrics.incCRCErrCount()
			c.logger.Debug("ercp: dropping frame", "error", err)

			if werr := c.writeFrame(NackCommand(NackInvalidCRC).Frame()); werr != nil {
				return Frame{}, werr
			}

		case errors.Is(err, errValueTooLong):
			c.metrics.incFrameErrCount()
			c.logger.Debug("ercp: dropping frame", "error", err)

			if werr := c.writeFrame(NackCommand(NackTooLong).Frame()); werr != nil {
				return Frame{}, werr
			}

		case errors.Is(err, ErrInvalidFrame), errors.Is(err, errFrameTimeout):
			c.metrics.incFrameErrCount()
			c.logger.Debug("ercp: dropping frame", "error", err)

		default:
			return Frame{}, err
		}
	}
}

// scanFrame hunts for the frame prefix, then reads one frame.
//
// Before the prefix completes only the caller's deadline applies; afterwards every byte must
// also arrive within the frame timeout.
func (c *Conn) scanFrame(ctx context.Context, deadline time.Time) (Frame, error) {
	for matched := 0; matched < len(framePrefix); {
		b, err := c.readByte(ctx, deadline, matched > 0)
		if err != nil {
			if errors.Is(err, errFrameTimeout) {
				matched = 0
				continue
			}

			return Frame{}, err
		}

		switch {
		case b == framePrefix[matched]:
			matched++
		case b == framePrefix[0]:
			matched = 1
		default:
			matched = 0
		}
	}

	code, err := c.readByte(ctx, deadline, true)
	if err != nil {
		return Frame{}, err
	}

	length, err := c.readByte(ctx, deadline, true)
	if err != nil {
		return Frame{}, err
	}

	frame := Frame{Code: code}
	if length > 0 {
		frame.Value = make([]byte, length)
		for i := range frame.Value {
			if frame.Value[i], err = c.readByte(ctx, deadline, true); err != nil {
				return Frame{}, err
			}
		}
	}

	crc, err := c.readByte(ctx, deadline, true)
	if err != nil {
		return Frame{}, err
	}

	eot, err := c.readByte(ctx, deadline, true)
	if err != nil {
		return Frame{}, err
	}

	if calc := frame.CRC(); crc != calc {
		return Frame{}, fmt.Errorf("%w: wire=0x%02X, computed=0x%02X", ErrInvalidCRC, crc, calc)
	}

	if eot != EOT {
		return Frame{}, fmt.Errorf("%w: expected EOT, got 0x%02X", ErrInvalidFrame, eot)
	}

	if int(length) > c.cfg.maxValueLength {
		return Frame{}, fmt.Errorf("%w: %d bytes, max %d", errValueTooLong, length, c.cfg.maxValueLength)
	}

	return frame, nil
}

// readByte returns the next received byte.
//
// When inFrame is set, the wait is also bounded by the frame timeout, reported as
// errFrameTimeout. Expiry of deadline is reported as ErrTimeout.
func (c *Conn) readByte(ctx context.Context, deadline time.Time, inFrame bool) (byte, error) {
	if len(c.pending) > 0 {
		b := c.pending[0]
		c.pending = c.pending[1:]

		return b, nil
	}

	wait, timeoutErr := deadline, ErrTimeout
	if inFrame {
		interByte := time.Now().Add(c.cfg.frameTimeout)
		if wait = pool.Earliest(deadline, interByte); wait.Equal(interByte) {
			timeoutErr = errFrameTimeout
		}
	}

	timer := pool.NewDeadline(wait)
	defer timer.Release()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()

	case <-c.ctx.Done():
		return 0, ErrConnClosed

	case <-timer.C():
		return 0, timeoutErr

	case chunk, ok := <-c.rxChan:
		if !ok {
			return 0, c.rxError()
		}

		c.pending = chunk[1:]

		return chunk[0], nil
	}
}
