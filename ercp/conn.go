package ercp

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-ercp/internal/pool"
	"github.com/arloliu/go-ercp/logger"
)

// readBufSize is the size of a single port read.
const readBufSize = 512

// Conn is an ERCP Basic connection over a byte stream.
//
// A background reader pumps bytes from the port into a queue; frames are assembled on the
// caller's goroutine. Transceive and Receive must not run concurrently with each other.
// Writes are serialized, so Notify may be called from another goroutine while a Receive is
// in progress.
type Conn struct {
	port   io.ReadWriteCloser
	cfg    *ConnectionConfig
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	writeMu sync.Mutex

	rxChan     chan []byte
	readerDone chan struct{}
	readErr    error // set by the reader before rxChan is closed
	pending    []byte

	metrics ConnectionMetrics
}

// NewConn creates a connection on port and starts its reader.
//
// The connection owns port: Close closes it.
func NewConn(port io.ReadWriteCloser, cfg *ConnectionConfig) (*Conn, error) {
	if port == nil {
		return nil, errors.New("ercp: port is nil")
	}
	if cfg == nil {
		return nil, errors.New("ercp: connection config is nil")
	}

	c := &Conn{
		port:       port,
		cfg:        cfg,
		logger:     cfg.logger,
		rxChan:     make(chan []byte, cfg.rxQueueSize),
		readerDone: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.readLoop()

	return c, nil
}

// Transceive sends cmd and waits for the reply frame.
//
// Input left over from earlier exchanges is discarded before every write, and frames that
// cannot answer cmd (see Command.Accepts) are dropped, so the reply always belongs to the
// request just sent. A NACK(InvalidCRC) reply makes the command be resent, up to the retry
// limit; any other reply, Nack included, is returned as is. timeout bounds the whole
// exchange; NoTimeout waits until ctx is done.
func (c *Conn) Transceive(ctx context.Context, cmd Command, timeout time.Duration) (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrConnClosed
	}

	deadline := deadlineFor(timeout)

	c.metrics.InflightGauge.Store(1)
	defer c.metrics.InflightGauge.Store(0)

	for attempt := 0; ; attempt++ {
		c.discardInput()

		if err := c.writeFrame(cmd.Frame()); err != nil {
			return Frame{}, err
		}

		reply, err := c.readReply(ctx, cmd, deadline)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				c.metrics.incTimeoutCount()
				c.logger.Debug("ercp: reply timeout", "command", cmd, "timeout", timeout)
			}

			return Frame{}, err
		}

		if nack := reply.NackError(); nack != nil && nack.Reason == NackInvalidCRC && attempt < c.cfg.retryLimit {
			c.metrics.incRetryCount()
			c.logger.Debug("ercp: peer reported CRC error, resending",
				"command", cmd,
				"retry", attempt+1,
				"maxRetry", c.cfg.retryLimit,
			)

			continue
		}

		return reply, nil
	}
}

// readReply returns the first frame that can answer cmd. Other frames, such as a reply to an
// earlier request that timed out, are dropped.
func (c *Conn) readReply(ctx context.Context, cmd Command, deadline time.Time) (Frame, error) {
	for {
		frame, err := c.readFrame(ctx, deadline)
		if err != nil {
			return Frame{}, err
		}

		if cmd.Accepts(frame) {
			return frame, nil
		}

		c.metrics.incDiscardCount()
		c.logger.Debug("ercp: dropping frame that does not answer the request",
			"command", cmd,
			"frame", frame,
		)
	}
}

// discardInput drops everything received but not consumed yet, so that stale bytes cannot be
// taken for the reply to the next request. Ports with their own buffers are flushed first.
func (c *Conn) discardInput() {
	if f, ok := c.port.(flusher); ok {
		if err := f.Flush(); err != nil {
			c.logger.Debug("ercp: port flush failed", "error", err)
		}
	}

	dropped := len(c.pending)
	c.pending = nil

drain:
	for {
		select {
		case chunk, ok := <-c.rxChan:
			if !ok {
				break drain
			}
			dropped += len(chunk)
		default:
			break drain
		}
	}

	if dropped > 0 {
		c.metrics.incDiscardCount()
		c.logger.Debug("ercp: discarded stale input", "bytes", dropped)
	}
}

// flusher is implemented by ports that buffer data outside the connection.
type flusher interface {
	Flush() error
}

// Receive waits for the next frame sent by the peer, typically an unsolicited notification.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrConnClosed
	}

	frame, err := c.readFrame(ctx, deadlineFor(timeout))
	if errors.Is(err, ErrTimeout) {
		c.metrics.incTimeoutCount()
	}

	return frame, err
}

// Notify sends cmd without waiting for a reply.
func (c *Conn) Notify(ctx context.Context, cmd Command) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.writeFrame(cmd.Frame())
}

// Close stops the reader and closes the port. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cancel()
	err := c.port.Close()

	timer := pool.GetTimer(c.cfg.closeTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-c.readerDone:
	case <-timer.C:
		c.logger.Warn("ercp: reader did not stop before close timeout", "timeout", c.cfg.closeTimeout)
	}

	if err != nil && !isClosedError(err) {
		return &IOError{Op: "close", Err: err}
	}

	return nil
}

// GetMetrics returns the metrics associated with the connection.
func (c *Conn) GetMetrics() *ConnectionMetrics {
	return &c.metrics
}

// GetLogger returns the logger associated with the connection.
func (c *Conn) GetLogger() logger.Logger {
	return c.logger
}

func (c *Conn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	data := f.Pack()
	for written := 0; written < len(data); {
		n, err := c.port.Write(data[written:])
		written += n

		if err != nil {
			if c.closed.Load() || isClosedError(err) {
				return ErrConnClosed
			}

			return &IOError{Op: "write", Err: err}
		}
	}

	c.metrics.incFrameSendCount()
	c.logger.Debug("ercp: frame sent", "frame", f)

	return nil
}

// readLoop copies port data into rxChan until the port fails or the connection is closed.
func (c *Conn) readLoop() {
	defer close(c.readerDone)
	defer close(c.rxChan)

	buf := make([]byte, readBufSize)

	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case c.rxChan <- chunk:
			case <-c.ctx.Done():
				return
			}
		}

		if err != nil {
			c.readErr = err

			return
		}
	}
}

// rxError converts the reader's terminal error into the error seen by callers.
func (c *Conn) rxError() error {
	if c.closed.Load() || c.readErr == nil || isClosedError(c.readErr) {
		return ErrConnClosed
	}

	return &IOError{Op: "read", Err: c.readErr}
}

// deadlineFor converts a per-call timeout into an absolute deadline.
// NoTimeout yields the zero time.
func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= NoTimeout {
		return time.Time{}
	}

	return time.Now().Add(timeout)
}
