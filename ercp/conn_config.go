package ercp

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ercp/logger"
)

// Default connection settings.
const (
	DefaultFrameTimeout = 100 * time.Millisecond // Inter-byte timeout inside a frame
	DefaultRetryLimit   = 3                      // Resends after NACK(InvalidCRC)
	DefaultCloseTimeout = time.Second
	DefaultRxQueueSize  = 64
)

// Range limits.
const (
	MinFrameTimeout = time.Millisecond
	MaxFrameTimeout = 10 * time.Second

	MaxRetryLimit = 10
)

// NoTimeout waits for a frame until the context is done or the connection is closed.
const NoTimeout time.Duration = 0

// ConnectionConfig holds the configuration of an ERCP Basic connection.
type ConnectionConfig struct {
	frameTimeout time.Duration
	retryLimit   int

	// maxValueLength bounds values of received frames; longer frames are NACK'd with
	// NackTooLong.
	maxValueLength int

	closeTimeout time.Duration
	rxQueueSize  int

	logger logger.Logger
}

// NewConnectionConfig creates a new connection configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConnectionConfig(opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		frameTimeout:   DefaultFrameTimeout,
		retryLimit:     DefaultRetryLimit,
		maxValueLength: MaxValueLength,
		closeTimeout:   DefaultCloseTimeout,
		rxQueueSize:    DefaultRxQueueSize,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// FrameTimeout returns the inter-byte timeout.
func (cfg *ConnectionConfig) FrameTimeout() time.Duration { return cfg.frameTimeout }

// RetryLimit returns the number of resends after NACK(InvalidCRC).
func (cfg *ConnectionConfig) RetryLimit() int { return cfg.retryLimit }

// MaxValueLength returns the longest value accepted in a received frame.
func (cfg *ConnectionConfig) MaxValueLength() int { return cfg.maxValueLength }

// CloseTimeout returns how long Close waits for the reader to stop.
func (cfg *ConnectionConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// RxQueueSize returns the capacity of the received chunk queue.
func (cfg *ConnectionConfig) RxQueueSize() int { return cfg.rxQueueSize }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

// WithFrameTimeout sets the inter-byte timeout, in [1ms, 10s].
func WithFrameTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinFrameTimeout || d > MaxFrameTimeout {
			return fmt.Errorf("ercp: frame timeout %v out of range [%v, %v]", d, MinFrameTimeout, MaxFrameTimeout)
		}
		cfg.frameTimeout = d

		return nil
	})
}

// WithRetryLimit sets the number of resends after NACK(InvalidCRC), in [0, 10].
func WithRetryLimit(n int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("ercp: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithMaxValueLength sets the longest value accepted in a received frame, in [0, 255].
func WithMaxValueLength(n int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if n < 0 || n > MaxValueLength {
			return fmt.Errorf("ercp: max value length %d out of range [0, %d]", n, MaxValueLength)
		}
		cfg.maxValueLength = n

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the reader to stop.
func WithCloseTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("ercp: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithRxQueueSize sets the capacity of the received chunk queue.
func WithRxQueueSize(size int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if size < 1 {
			return errors.New("ercp: rx queue size must be >= 1")
		}
		cfg.rxQueueSize = size

		return nil
	})
}

// WithLogger sets the logger for the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("ercp: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
