package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// TimestampLayout is the layout of the timestamp printed before each log message.
const TimestampLayout = "15:04:05.000"

// LogLoopState is the state of a LogLoop.
type LogLoopState int32

const (
	// StateIdle is the state before Run is called and after it returns.
	StateIdle LogLoopState = iota
	// StateAwaitingFrame is the state while waiting for a notification.
	StateAwaitingFrame
	// StateDelivered is the state after a log message has been printed.
	StateDelivered
	// StateRejected is the state after a frame or receive error has been reported.
	StateRejected
)

func (s LogLoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFrame:
		return "awaiting-frame"
	case StateDelivered:
		return "delivered"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("LogLoopState(%d)", int32(s))
	}
}

// LogLoopStats counts the outcomes of a LogLoop.
type LogLoopStats struct {
	// Delivered is the number of log messages printed and acknowledged.
	Delivered atomic.Uint64
	// Rejected is the number of unexpected frames, undecodable messages and receive errors.
	Rejected atomic.Uint64
	// AckFailures is the number of log messages whose acknowledgment could not be sent.
	AckFailures atomic.Uint64
}

// LogLoopConfig configures a LogLoop. Zero fields take defaults.
type LogLoopConfig struct {
	// Stdout receives the banner and the log messages. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives one line per rejected frame. Defaults to os.Stderr.
	Stderr io.Writer
	// Now returns the time printed before each line. Defaults to time.Now.
	Now func() time.Time
	// Timeout bounds each wait for a notification. Defaults to ercp.NoTimeout.
	Timeout time.Duration
	// Stats receives the loop counters, so they can be exported before the loop starts.
	// Defaults to counters owned by the loop.
	Stats *LogLoopStats
}

// LogLoop prints the log notifications sent by a device until it is cancelled.
type LogLoop struct {
	session *Session
	cfg     LogLoopConfig
	state   atomic.Int32
	stats   *LogLoopStats
}

// NewLogLoop creates a log loop on session.
func NewLogLoop(session *Session, cfg LogLoopConfig) *LogLoop {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stats == nil {
		cfg.Stats = &LogLoopStats{}
	}

	return &LogLoop{session: session, cfg: cfg, stats: cfg.Stats}
}

// State returns the current state of the loop.
func (l *LogLoop) State() LogLoopState {
	return LogLoopState(l.state.Load())
}

// Stats returns the counters of the loop.
func (l *LogLoop) Stats() *LogLoopStats {
	return l.stats
}

// Run prints a banner, then waits for log notifications, printing and acknowledging each.
//
// Rejected frames and receive errors are reported on Stderr and the loop goes on. Run returns
// nil once ctx is done, or the transport error that made the link unusable.
func (l *LogLoop) Run(ctx context.Context) error {
	defer l.setState(StateIdle)

	fmt.Fprintf(l.cfg.Stdout, "%s Starting log session (type ^C to quit)\n", l.timestamp())

	for ctx.Err() == nil {
		l.setState(StateAwaitingFrame)

		msg, err := l.session.receiveLog(ctx, l.cfg.Timeout)
		if err != nil {
			switch KindOf(err) {
			case ErrCanceled:
				return nil
			case ErrTransport:
				return err
			}

			l.stats.Rejected.Add(1)
			l.setState(StateRejected)
			fmt.Fprintf(l.cfg.Stderr, "Error: %v\n", err)

			continue
		}

		fmt.Fprintf(l.cfg.Stdout, "%s %s\n", l.timestamp(), msg)
		l.stats.Delivered.Add(1)
		l.setState(StateDelivered)

		if err := l.session.ackLog(ctx); err != nil {
			l.stats.AckFailures.Add(1)
			l.session.logger.Warn("device: log acknowledgment failed", "error", err)

			if errors.Is(err, ErrTransport) {
				return err
			}
		}
	}

	return nil
}

func (l *LogLoop) setState(s LogLoopState) {
	l.state.Store(int32(s))
}

func (l *LogLoop) timestamp() string {
	return l.cfg.Now().Format(TimestampLayout)
}
