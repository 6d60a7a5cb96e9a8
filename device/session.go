// Package device implements the command session with an ERCP device.
//
// A Session owns one connection to the protocol engine and exposes one method per request
// kind. Methods block until the reply arrives, the timeout expires, or the link fails, and
// return an *Error classifying the failure. Sessions are not safe for concurrent use.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/logger"
	"github.com/arloliu/go-ercp/transport"
)

// Engine is the protocol engine used by a Session. *ercp.Conn implements it.
type Engine interface {
	// Transceive sends cmd and returns the reply frame.
	Transceive(ctx context.Context, cmd ercp.Command, timeout time.Duration) (ercp.Frame, error)
	// Receive returns the next frame sent by the device on its own.
	Receive(ctx context.Context, timeout time.Duration) (ercp.Frame, error)
	// Notify sends cmd without waiting for a reply.
	Notify(ctx context.Context, cmd ercp.Command) error
	// Close closes the connection.
	Close() error
}

var _ Engine = (*ercp.Conn)(nil)

// Session is a command session with one device.
//
// Every operation takes a timeout, passed unchanged to the engine; ercp.NoTimeout (zero)
// lets the engine wait until ctx is done.
type Session struct {
	engine     Engine
	valueLimit int
	logger     logger.Logger
}

// NewSession creates a session on an already open engine. The session owns engine.
func NewSession(engine Engine, opts ...Option) (*Session, error) {
	if engine == nil {
		return nil, errors.New("device: engine is nil")
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Session{
		engine:     engine,
		valueLimit: cfg.valueLimit,
		logger:     cfg.logger,
	}, nil
}

// Open opens the serial port portName, starts an ERCP Basic engine on it and returns the
// session.
func Open(portName string, opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	port, err := cfg.opener(transport.Config{
		Name:        portName,
		Baud:        cfg.baud,
		ReadTimeout: cfg.linkTimeout,
	})
	if err != nil {
		return nil, newError("open", ErrTransport, err)
	}

	connOpts := append([]ercp.ConnOption{ercp.WithLogger(cfg.logger)}, cfg.connOpts...)

	connCfg, err := ercp.NewConnectionConfig(connOpts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	conn, err := ercp.NewConn(port, connCfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	cfg.logger.Debug("device: session opened", "port", portName, "baud", cfg.baud)

	return &Session{
		engine:     conn,
		valueLimit: cfg.valueLimit,
		logger:     cfg.logger,
	}, nil
}

// Engine returns the engine of the session.
func (s *Session) Engine() Engine {
	return s.engine
}

// ValueLimit returns the current ceiling for custom command values.
func (s *Session) ValueLimit() int {
	return s.valueLimit
}

// Close closes the connection. The session cannot be used afterwards.
func (s *Session) Close() error {
	if err := s.engine.Close(); err != nil {
		return newError("close", ErrTransport, err)
	}

	return nil
}

// Ping checks that the device is alive.
func (s *Session) Ping(ctx context.Context, timeout time.Duration) error {
	return s.expectAck(ctx, "ping", ercp.Ping, timeout)
}

// Reset asks the device to reset.
//
// A device that resets before acknowledging makes Reset fail with a timeout; callers decide
// whether that is fatal, see IsTimeout.
func (s *Session) Reset(ctx context.Context, timeout time.Duration) error {
	return s.expectAck(ctx, "reset", ercp.Reset, timeout)
}

// Protocol returns the protocol version implemented by the device.
func (s *Session) Protocol(ctx context.Context, timeout time.Duration) (Version, error) {
	const op = "protocol"

	reply, err := s.request(ctx, op, ercp.Protocol, nil, ercp.ProtocolReply, timeout)
	if err != nil {
		return Version{}, err
	}

	if len(reply.Value) != 3 {
		return Version{}, newError(op, ErrProtocol,
			fmt.Errorf("%w: %d bytes, expected 3", ErrInvalidReply, len(reply.Value)))
	}

	return Version{Major: reply.Value[0], Minor: reply.Value[1], Patch: reply.Value[2]}, nil
}

// Version returns the version string of component.
func (s *Session) Version(ctx context.Context, component Component, timeout time.Duration) (string, error) {
	const op = "version"

	if !component.IsValid() {
		return "", newError(op, ErrConstruction, errors.New("invalid component"))
	}

	reply, err := s.request(ctx, op, ercp.Version, []byte{component.Byte()}, ercp.VersionReply, timeout)
	if err != nil {
		return "", err
	}

	return decodeText(op, reply.Value)
}

// MaxLength returns the longest value the device accepts. It becomes the ceiling for
// subsequent custom commands.
func (s *Session) MaxLength(ctx context.Context, timeout time.Duration) (uint8, error) {
	const op = "max-length"

	reply, err := s.request(ctx, op, ercp.MaxLength, nil, ercp.MaxLengthReply, timeout)
	if err != nil {
		return 0, err
	}

	if len(reply.Value) != 1 {
		return 0, newError(op, ErrProtocol,
			fmt.Errorf("%w: %d bytes, expected 1", ErrInvalidReply, len(reply.Value)))
	}

	s.valueLimit = int(reply.Value[0])

	return reply.Value[0], nil
}

// Description returns the device description.
func (s *Session) Description(ctx context.Context, timeout time.Duration) (string, error) {
	const op = "description"

	reply, err := s.request(ctx, op, ercp.Description, nil, ercp.DescriptionReply, timeout)
	if err != nil {
		return "", err
	}

	return decodeText(op, reply.Value)
}

// Command sends a custom command and returns the reply as is, Nack included.
//
// A value longer than the session ceiling fails with ErrConstruction and is never sent.
func (s *Session) Command(ctx context.Context, code byte, value []byte, timeout time.Duration) (Reply, error) {
	const op = "command"

	cmd, err := ercp.NewCommandWithLimit(code, value, s.valueLimit)
	if err != nil {
		return Reply{}, newError(op, ErrConstruction, err)
	}

	frame, err := s.engine.Transceive(ctx, cmd, timeout)
	if err != nil {
		return Reply{}, classify(op, err)
	}

	return Reply{Code: frame.Code, Value: frame.Value}, nil
}

// CustomCommand decodes a two-digit hexadecimal code and an optional hexadecimal value,
// then behaves like Command. Decoding errors are reported before anything is sent.
func (s *Session) CustomCommand(ctx context.Context, code string, value string, timeout time.Duration) (Reply, error) {
	const op = "command"

	c, err := ParseCode(code)
	if err != nil {
		return Reply{}, newError(op, ErrConstruction, err)
	}

	v, err := ParseValue(value)
	if err != nil {
		return Reply{}, newError(op, ErrConstruction, err)
	}

	return s.Command(ctx, c, v, timeout)
}

// WaitForLog waits for a log notification and acknowledges it.
//
// Frames other than Log fail with ErrUnexpectedFrame and are not acknowledged. A failed
// acknowledgment is logged but does not fail the call.
func (s *Session) WaitForLog(ctx context.Context, timeout time.Duration) (string, error) {
	msg, err := s.receiveLog(ctx, timeout)
	if err != nil {
		return "", err
	}

	if ackErr := s.ackLog(ctx); ackErr != nil {
		s.logger.Warn("device: log acknowledgment failed", "error", ackErr)
	}

	return msg, nil
}

// receiveLog waits for a frame and checks that it is a log notification with a text value.
func (s *Session) receiveLog(ctx context.Context, timeout time.Duration) (string, error) {
	const op = "log"

	frame, err := s.engine.Receive(ctx, timeout)
	if err != nil {
		return "", classify(op, err)
	}

	if frame.Code != ercp.Log {
		return "", newError(op, ErrUnexpectedFrame,
			&UnexpectedFrameError{Got: frame.Code, Expected: ercp.Log})
	}

	return decodeText(op, frame.Value)
}

func (s *Session) ackLog(ctx context.Context) error {
	return classify("ack", s.engine.Notify(ctx, ercp.AckCommand()))
}

// Info reads the description and the firmware and protocol library versions.
//
// Every query is attempted; failures are collected in Info.Errors. A transport failure or
// cancellation stops the remaining queries.
func (s *Session) Info(ctx context.Context, timeout time.Duration) Info {
	var info Info

	queries := []struct {
		dst *string
		get func() (string, error)
	}{
		{&info.Description, func() (string, error) { return s.Description(ctx, timeout) }},
		{&info.FirmwareVersion, func() (string, error) { return s.Version(ctx, Firmware, timeout) }},
		{&info.ERCPVersion, func() (string, error) { return s.Version(ctx, ProtocolLibrary, timeout) }},
	}

	for _, q := range queries {
		v, err := q.get()
		if err != nil {
			info.Errors = append(info.Errors, err)

			if kind := KindOf(err); kind == ErrTransport || kind == ErrCanceled {
				break
			}

			continue
		}

		*q.dst = v
	}

	return info
}

func (s *Session) expectAck(ctx context.Context, op string, code byte, timeout time.Duration) error {
	_, err := s.request(ctx, op, code, nil, ercp.Ack, timeout)
	return err
}

// request performs one round trip and checks the reply type. A Nack reply fails with
// ErrProtocol, any other unexpected type with ErrUnexpectedFrame.
func (s *Session) request(ctx context.Context, op string, code byte, value []byte, want byte, timeout time.Duration) (ercp.Frame, error) {
	cmd, err := ercp.NewCommand(code, value)
	if err != nil {
		return ercp.Frame{}, newError(op, ErrConstruction, err)
	}

	reply, err := s.engine.Transceive(ctx, cmd, timeout)
	if err != nil {
		return ercp.Frame{}, classify(op, err)
	}

	if reply.Code == want {
		return reply, nil
	}

	if nack := reply.NackError(); nack != nil {
		return ercp.Frame{}, newError(op, ErrProtocol, nack)
	}

	return ercp.Frame{}, newError(op, ErrUnexpectedFrame, &UnexpectedFrameError{Got: reply.Code, Expected: want})
}

func decodeText(op string, value []byte) (string, error) {
	if !utf8.Valid(value) {
		return "", newError(op, ErrEncoding, fmt.Errorf("% X", value))
	}

	return string(value), nil
}
