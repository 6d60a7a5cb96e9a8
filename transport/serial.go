// Package transport opens the serial ports ERCP devices are attached to.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// Default serial settings.
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 10 * time.Millisecond
)

// Port is an open serial port.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data written but not transmitted, and data received but not read.
	Flush() error
}

// Config holds the serial port configuration. The line is always 8N1.
type Config struct {
	// Name is the device path, e.g. "/dev/ttyACM0" or "COM3".
	Name string
	// Baud is the line speed. Zero selects DefaultBaud.
	Baud int
	// ReadTimeout bounds a single driver read. Zero selects DefaultReadTimeout.
	//
	// Reads that time out without data are retried internally, so Read on the returned Port
	// only returns once data arrives or the port fails.
	ReadTimeout time.Duration
}

// DefaultConfig returns the default configuration for the port name.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Opener opens a port. Open is the Opener for real serial ports.
type Opener func(cfg Config) (Port, error)

// Open opens the serial port described by cfg.
func Open(cfg Config) (Port, error) {
	if cfg.Name == "" {
		return nil, errors.New("transport: port name is empty")
	}
	if cfg.Baud < 0 {
		return nil, fmt.Errorf("transport: invalid baud rate %d", cfg.Baud)
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Name, err)
	}

	return newPollingPort(p), nil
}

// driverPort is the subset of *serial.Port used here.
type driverPort interface {
	io.ReadWriteCloser
	Flush() error
}

// pollingPort turns the driver's timed reads into blocking reads.
//
// With a read timeout the driver reports "no data yet" as (0, nil) or (0, io.EOF).
type pollingPort struct {
	driverPort
	closed atomic.Bool
}

func newPollingPort(p driverPort) *pollingPort {
	return &pollingPort{driverPort: p}
}

func (p *pollingPort) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for {
		if p.closed.Load() {
			return 0, io.ErrClosedPipe
		}

		n, err := p.driverPort.Read(b)
		if n > 0 {
			return n, nil
		}

		if err != nil && !errors.Is(err, io.EOF) {
			if p.closed.Load() {
				return 0, io.ErrClosedPipe
			}

			return 0, err
		}
	}
}

func (p *pollingPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	return p.driverPort.Close()
}

// StreamPort adapts a stream without buffers of its own, such as one end of net.Pipe, to Port.
func StreamPort(rwc io.ReadWriteCloser) Port {
	return streamPort{rwc}
}

type streamPort struct {
	io.ReadWriteCloser
}

func (streamPort) Flush() error { return nil }
