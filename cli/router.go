package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-ercp/device"
	"github.com/arloliu/go-ercp/metrics"
)

// notAvailable is printed in place of a value that could not be read.
const notAvailable = "N/A"

// Router runs parsed operations on a session and renders their outcome: one line on stdout
// on success, one line on stderr per error.
type Router struct {
	session *device.Session
	stdout  io.Writer
	stderr  io.Writer

	now        func() time.Time
	logTimeout time.Duration
	logStats   *device.LogLoopStats
	recorder   *metrics.Recorder
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithClock sets the clock used for log timestamps.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithLogTimeout bounds each wait of the log operation.
func WithLogTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.logTimeout = d }
}

// WithLogStats sets the counters updated by the log operation.
func WithLogStats(stats *device.LogLoopStats) RouterOption {
	return func(r *Router) { r.logStats = stats }
}

// WithRecorder records every routed operation.
func WithRecorder(rec *metrics.Recorder) RouterOption {
	return func(r *Router) { r.recorder = rec }
}

// NewRouter creates a router on session.
func NewRouter(session *device.Session, stdout, stderr io.Writer, opts ...RouterOption) *Router {
	r := &Router{
		session: session,
		stdout:  stdout,
		stderr:  stderr,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Route runs cmd with timeout and renders the outcome. The returned error has already been
// printed; it only tells the caller that the operation failed.
func (r *Router) Route(ctx context.Context, cmd Command, timeout time.Duration) error {
	start := time.Now()
	err := r.route(ctx, cmd, timeout)
	r.recorder.Observe(cmd.Op.String(), err, time.Since(start))

	return err
}

func (r *Router) route(ctx context.Context, cmd Command, timeout time.Duration) error {
	switch cmd.Op {
	case OpPing:
		if err := r.session.Ping(ctx, timeout); err != nil {
			return r.fail(err)
		}
		r.println("The device is alive.")

	case OpReset:
		err := r.session.Reset(ctx, timeout)
		if device.IsTimeout(err) {
			r.warn("the device did not acknowledge the reset; it may have reset before replying")
			return nil
		}
		if err != nil {
			return r.fail(err)
		}

	case OpProtocol:
		v, err := r.session.Protocol(ctx, timeout)
		if err != nil {
			return r.fail(err)
		}
		r.println("Protocol: " + v.String())

	case OpVersion:
		v, err := r.session.Version(ctx, cmd.Component, timeout)
		if err != nil {
			return r.fail(err)
		}
		r.println(v)

	case OpMaxLength:
		n, err := r.session.MaxLength(ctx, timeout)
		if err != nil {
			return r.fail(err)
		}
		r.println(fmt.Sprintf("Max length = %d", n))

	case OpDescription:
		d, err := r.session.Description(ctx, timeout)
		if err != nil {
			return r.fail(err)
		}
		r.println(d)

	case OpCommand:
		reply, err := r.session.CustomCommand(ctx, cmd.Code, cmd.Value, timeout)
		if err != nil {
			return r.fail(err)
		}
		r.println("Reply: " + reply.String())

	case OpLog:
		loop := device.NewLogLoop(r.session, device.LogLoopConfig{
			Stdout:  r.stdout,
			Stderr:  r.stderr,
			Now:     r.now,
			Timeout: r.logTimeout,
			Stats:   r.logStats,
		})
		if err := loop.Run(ctx); err != nil {
			return r.fail(err)
		}

	case OpInfo:
		return r.info(ctx, timeout)

	default:
		return r.fail(fmt.Errorf("unsupported operation %s", cmd.Op))
	}

	return nil
}

func (r *Router) info(ctx context.Context, timeout time.Duration) error {
	info := r.session.Info(ctx, timeout)

	r.println("Description: " + orNotAvailable(info.Description))
	r.println("Firmware version: " + orNotAvailable(info.FirmwareVersion))
	r.println("ERCP library version: " + orNotAvailable(info.ERCPVersion))

	for _, err := range info.Errors {
		r.printError(err)
	}

	if len(info.Errors) > 0 {
		return info.Errors[0]
	}

	return nil
}

func (r *Router) println(line string) {
	fmt.Fprintln(r.stdout, line)
}

func (r *Router) warn(msg string) {
	fmt.Fprintf(r.stderr, "Warning: %s\n", msg)
}

func (r *Router) printError(err error) {
	fmt.Fprintf(r.stderr, "Error: %v\n", err)
}

func (r *Router) fail(err error) error {
	r.printError(err)
	return err
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}

	return s
}
