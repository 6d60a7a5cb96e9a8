package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/logger"
	"github.com/arloliu/go-ercp/transport"
)

// config holds the settings applied by Options.
type config struct {
	baud        int
	linkTimeout time.Duration
	valueLimit  int
	connOpts    []ercp.ConnOption
	opener      transport.Opener
	logger      logger.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		baud:        transport.DefaultBaud,
		linkTimeout: transport.DefaultReadTimeout,
		valueLimit:  ercp.MaxValueLength,
		opener:      transport.Open,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a Session.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate sets the serial line speed used by Open.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return fmt.Errorf("device: invalid baud rate %d", baud)
		}
		cfg.baud = baud

		return nil
	})
}

// WithLinkTimeout sets the OS-level read timeout of the serial port used by Open.
func WithLinkTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("device: link timeout must be positive")
		}
		cfg.linkTimeout = d

		return nil
	})
}

// WithValueLimit sets the initial ceiling for custom command values, in [0, 255].
// A successful MaxLength call replaces it with the device's value.
func WithValueLimit(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 || n > ercp.MaxValueLength {
			return fmt.Errorf("device: value limit %d out of range [0, %d]", n, ercp.MaxValueLength)
		}
		cfg.valueLimit = n

		return nil
	})
}

// WithConnOptions passes options to the protocol engine built by Open.
func WithConnOptions(opts ...ercp.ConnOption) Option {
	return optFunc(func(cfg *config) error {
		cfg.connOpts = append(cfg.connOpts, opts...)
		return nil
	})
}

// WithOpener replaces the function Open uses to open the port.
func WithOpener(opener transport.Opener) Option {
	return optFunc(func(cfg *config) error {
		if opener == nil {
			return errors.New("device: opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger of the session and of the engine built by Open.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("device: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
