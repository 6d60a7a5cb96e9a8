// Package ercptest provides a simulated ERCP Basic device for tests and examples.
//
// The device runs on one end of an in-memory pipe; the other end is handed to the code under
// test as a transport.Port.
package ercptest

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/transport"
)

// Default identification of a simulated device.
const (
	DefaultDescription     = "ERCP simulated device"
	DefaultFirmwareVersion = "sim 1.0.0"
	DefaultERCPVersion     = "ercp-basic 0.1.0"
	DefaultMaxLength       = ercp.MaxValueLength
)

// Handler answers a custom command. Returning false sends no reply.
type Handler func(value []byte) (reply ercp.Frame, ok bool)

// Option configures a Device.
type Option func(*Device)

// WithDescription sets the reply to the Description command.
func WithDescription(desc string) Option {
	return func(d *Device) { d.description = desc }
}

// WithFirmwareVersion sets the firmware version string.
func WithFirmwareVersion(v string) Option {
	return func(d *Device) { d.firmwareVersion = v }
}

// WithMaxLength sets the reply to the MaxLength command.
func WithMaxLength(n uint8) Option {
	return func(d *Device) { d.maxLength = n }
}

// WithConnOptions passes options to the device's own engine.
func WithConnOptions(opts ...ercp.ConnOption) Option {
	return func(d *Device) { d.connOpts = append(d.connOpts, opts...) }
}

// Device is a simulated ERCP Basic device.
type Device struct {
	description     string
	firmwareVersion string
	maxLength       uint8
	connOpts        []ercp.ConnOption

	conn     *ercp.Conn
	host     net.Conn
	handlers *xsync.MapOf[byte, Handler]

	silent atomic.Bool
	acks   atomic.Uint64
	nacks  atomic.Uint64

	mu       sync.Mutex
	requests []ercp.Frame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a simulated device. It panics if the device engine cannot be configured, which
// only happens with invalid options.
func New(opts ...Option) *Device {
	d := &Device{
		description:     DefaultDescription,
		firmwareVersion: DefaultFirmwareVersion,
		maxLength:       DefaultMaxLength,
		handlers:        xsync.NewMapOf[byte, Handler](),
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	cfg, err := ercp.NewConnectionConfig(d.connOpts...)
	if err != nil {
		panic(err)
	}

	local, host := net.Pipe()

	d.conn, err = ercp.NewConn(local, cfg)
	if err != nil {
		panic(err)
	}
	d.host = host
	d.ctx, d.cancel = context.WithCancel(context.Background())

	go d.serve()

	return d
}

// Port returns the host end of the link.
func (d *Device) Port() transport.Port {
	return transport.StreamPort(d.host)
}

// Opener returns an opener handing out the host end of the link, whatever the configuration.
func (d *Device) Opener() transport.Opener {
	return func(transport.Config) (transport.Port, error) {
		return d.Port(), nil
	}
}

// Handle registers h for command code, replacing any built-in behavior for it.
func (d *Device) Handle(code byte, h Handler) {
	d.handlers.Store(code, h)
}

// SetSilent makes the device ignore every received command when silent is true.
func (d *Device) SetSilent(silent bool) {
	d.silent.Store(silent)
}

// SendLog sends a log notification.
func (d *Device) SendLog(ctx context.Context, msg string) error {
	cmd, err := ercp.NewCommand(ercp.Log, []byte(msg))
	if err != nil {
		return err
	}

	return d.conn.Notify(ctx, cmd)
}

// SendFrame sends an arbitrary frame.
func (d *Device) SendFrame(ctx context.Context, f ercp.Frame) error {
	cmd, err := ercp.NewCommand(f.Code, f.Value)
	if err != nil {
		return err
	}

	return d.conn.Notify(ctx, cmd)
}

// Acks returns the number of Ack frames received from the host.
func (d *Device) Acks() uint64 {
	return d.acks.Load()
}

// Nacks returns the number of Nack frames received from the host.
func (d *Device) Nacks() uint64 {
	return d.nacks.Load()
}

// Requests returns the commands received from the host, Ack and Nack excluded.
func (d *Device) Requests() []ercp.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ercp.Frame, len(d.requests))
	copy(out, d.requests)

	return out
}

// Metrics returns the metrics of the device's own engine.
func (d *Device) Metrics() *ercp.ConnectionMetrics {
	return d.conn.GetMetrics()
}

// Close stops the device and closes both ends of the link.
func (d *Device) Close() error {
	d.cancel()
	err := d.conn.Close()
	_ = d.host.Close()
	<-d.done

	return err
}

func (d *Device) serve() {
	defer close(d.done)

	for {
		frame, err := d.conn.Receive(d.ctx, ercp.NoTimeout)
		if err != nil {
			if errors.Is(err, ercp.ErrConnClosed) || errors.Is(err, context.Canceled) || ercp.IsIOError(err) {
				return
			}

			continue
		}

		switch frame.Code {
		case ercp.Ack:
			d.acks.Add(1)
			continue
		case ercp.Nack:
			d.nacks.Add(1)
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, frame)
		d.mu.Unlock()

		if d.silent.Load() {
			continue
		}

		reply, ok := d.reply(frame)
		if !ok {
			continue
		}

		if err := d.SendFrame(d.ctx, reply); err != nil {
			return
		}
	}
}

func (d *Device) reply(frame ercp.Frame) (ercp.Frame, bool) {
	if h, ok := d.handlers.Load(frame.Code); ok {
		return h(frame.Value)
	}

	switch frame.Code {
	case ercp.Ping, ercp.Reset:
		return ercp.Frame{Code: ercp.Ack}, true

	case ercp.Protocol:
		return ercp.Frame{
			Code:  ercp.ProtocolReply,
			Value: []byte{ercp.VersionMajor, ercp.VersionMinor, ercp.VersionPatch},
		}, true

	case ercp.Version:
		if len(frame.Value) != 1 {
			return nack(ercp.NackInvalidArguments), true
		}

		switch frame.Value[0] {
		case ercp.ComponentFirmware:
			return ercp.Frame{Code: ercp.VersionReply, Value: []byte(d.firmwareVersion)}, true
		case ercp.ComponentERCPLibrary:
			return ercp.Frame{Code: ercp.VersionReply, Value: []byte(DefaultERCPVersion)}, true
		default:
			return nack(ercp.NackInvalidArguments), true
		}

	case ercp.MaxLength:
		return ercp.Frame{Code: ercp.MaxLengthReply, Value: []byte{d.maxLength}}, true

	case ercp.Description:
		return ercp.Frame{Code: ercp.DescriptionReply, Value: []byte(d.description)}, true

	default:
		return nack(ercp.NackUnknownCommand), true
	}
}

func nack(reason byte) ercp.Frame {
	return ercp.Frame{Code: ercp.Nack, Value: []byte{reason}}
}
