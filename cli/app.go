// Package cli implements the ercp command line: option parsing, configuration and the
// router dispatching operations to a device session.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-ercp/device"
	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/logger"
	"github.com/arloliu/go-ercp/metrics"
	"github.com/arloliu/go-ercp/transport"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

const usageText = `Usage: ercp [options] <operation> [arguments]

Operations:
  ping                         Tests communication with the device
  reset                        Resets the device
  protocol                     Gets the protocol version
  version <component>          Gets the version of a component (firmware, fw, ercp or a hex byte)
  max-length                   Gets the maximum accepted value length
  description                  Gets the device description
  command <code> [value]       Sends a custom command (hexadecimal code and value)
  log                          Waits for and prints logs sent by the device
  info                         Prints the description and component versions

Options:
`

// App is the ercp command line application.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// Getenv reads environment overrides. Defaults to os.Getenv.
	Getenv func(string) string
	// Opener opens the serial port. Defaults to transport.Open.
	Opener transport.Opener
	// Now is the clock used for log timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Run runs the command line with the process environment and serial ports.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &App{Stdout: stdout, Stderr: stderr}
	return app.Run(ctx, args)
}

type flagValues struct {
	basic        bool
	port         string
	baud         int
	timeout      time.Duration
	linkTimeout  time.Duration
	logTimeout   time.Duration
	frameTimeout time.Duration
	retryLimit   int
	configPath   string
	logLevel     string
	logBackend   string
	metricsAddr  string
}

// Run parses args (without the program name), runs one operation and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.setDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fs, fv := a.newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}

		return ExitUsage
	}

	cmd, err := ParseCommand(fs.Args())
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n\n", err)
		fs.Usage()

		return ExitUsage
	}

	cfg, err := a.buildConfig(fs, fv)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitFailure
	}

	log, err := logger.New(logger.Config{Backend: cfg.LogBackend, Level: cfg.LogLevel, Output: a.Stderr})
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	logger.SetDefault(log)

	if !cfg.Basic {
		fmt.Fprintln(a.Stderr, "You must select a protocol.")
		return ExitFailure
	}

	if cfg.Port == "" {
		fmt.Fprintln(a.Stderr, "Error: no serial port given, use --port")
		return ExitFailure
	}

	session, err := device.Open(cfg.Port,
		device.WithBaudRate(cfg.Baud),
		device.WithLinkTimeout(cfg.LinkTimeout),
		device.WithOpener(a.Opener),
		device.WithLogger(log.With("port", cfg.Port)),
		device.WithConnOptions(
			ercp.WithFrameTimeout(cfg.FrameTimeout),
			ercp.WithRetryLimit(cfg.RetryLimit),
		),
	)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: failed to open the port: %v\n", err)
		return ExitFailure
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("closing session failed", "error", err)
		}
	}()

	routerOpts := []RouterOption{WithClock(a.Now), WithLogTimeout(cfg.LogTimeout)}

	if cfg.MetricsAddr != "" {
		opts, err := a.startMetrics(ctx, cfg.MetricsAddr, session, log)
		if err != nil {
			fmt.Fprintf(a.Stderr, "Error: metrics: %v\n", err)
			return ExitFailure
		}
		routerOpts = append(routerOpts, opts...)
	}

	router := NewRouter(session, a.Stdout, a.Stderr, routerOpts...)
	if err := router.Route(ctx, cmd, cfg.Timeout); err != nil {
		return ExitFailure
	}

	return ExitOK
}

func (a *App) setDefaults() {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Getenv == nil {
		a.Getenv = os.Getenv
	}
	if a.Opener == nil {
		a.Opener = transport.Open
	}
	if a.Now == nil {
		a.Now = time.Now
	}
}

func (a *App) newFlagSet() (*flag.FlagSet, *flagValues) {
	fs := flag.NewFlagSet("ercp", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}

	def := DefaultConfig()
	fv := &flagValues{}

	fs.BoolVar(&fv.basic, "basic", false, "use ERCP Basic")
	fs.BoolVar(&fv.basic, "b", false, "shorthand for --basic")
	fs.StringVar(&fv.port, "port", "", "the serial port to use")
	fs.StringVar(&fv.port, "p", "", "shorthand for --port")
	fs.IntVar(&fv.baud, "baud", def.Baud, "serial line speed")
	fs.DurationVar(&fv.timeout, "timeout", def.Timeout, "reply timeout, 0 waits until interrupted")
	fs.DurationVar(&fv.timeout, "t", def.Timeout, "shorthand for --timeout")
	fs.DurationVar(&fv.linkTimeout, "link-timeout", def.LinkTimeout, "serial port read timeout")
	fs.DurationVar(&fv.logTimeout, "log-timeout", def.LogTimeout, "timeout of each wait in the log operation, 0 waits forever")
	fs.DurationVar(&fv.frameTimeout, "frame-timeout", def.FrameTimeout, "inter-byte timeout inside a frame")
	fs.IntVar(&fv.retryLimit, "retry-limit", def.RetryLimit, "resends after the device reports a CRC error")
	fs.StringVar(&fv.configPath, "config", "", "TOML configuration file")
	fs.StringVar(&fv.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	fs.StringVar(&fv.logBackend, "log-backend", "", "diagnostic log backend (slog, zerolog, logrus)")
	fs.StringVar(&fv.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return fs, fv
}

// buildConfig layers the configuration file, the environment and the flags set on the
// command line over the defaults.
func (a *App) buildConfig(fs *flag.FlagSet, fv *flagValues) (Config, error) {
	cfg := DefaultConfig()

	if fv.configPath != "" {
		if err := LoadConfigFile(fv.configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(a.Getenv); err != nil {
		return Config{}, err
	}

	var errs []error

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "basic", "b":
			cfg.Basic = fv.basic
		case "port", "p":
			cfg.Port = strings.TrimSpace(fv.port)
		case "baud":
			cfg.Baud = fv.baud
		case "timeout", "t":
			cfg.Timeout = fv.timeout
		case "link-timeout":
			cfg.LinkTimeout = fv.linkTimeout
		case "log-timeout":
			cfg.LogTimeout = fv.logTimeout
		case "frame-timeout":
			cfg.FrameTimeout = fv.frameTimeout
		case "retry-limit":
			cfg.RetryLimit = fv.retryLimit
		case "log-level":
			errs = append(errs, cfg.setLogLevel(fv.logLevel))
		case "log-backend":
			cfg.LogBackend = fv.logBackend
		case "metrics-addr":
			cfg.MetricsAddr = fv.metricsAddr
		}
	})

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if cfg.Timeout < 0 || cfg.LogTimeout < 0 {
		return Config{}, errors.New("timeouts must not be negative")
	}

	return cfg, nil
}

func (a *App) startMetrics(ctx context.Context, addr string, session *device.Session, log logger.Logger) ([]RouterOption, error) {
	reg := prometheus.NewRegistry()

	var connMetrics *ercp.ConnectionMetrics
	if m, ok := session.Engine().(interface{ GetMetrics() *ercp.ConnectionMetrics }); ok {
		connMetrics = m.GetMetrics()
	}

	loopStats := &device.LogLoopStats{}
	if err := metrics.Register(reg, connMetrics, loopStats); err != nil {
		return nil, err
	}

	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}

	srv, err := metrics.Listen(addr, reg, log)
	if err != nil {
		return nil, err
	}
	srv.Serve(ctx)

	return []RouterOption{WithLogStats(loopStats), WithRecorder(rec)}, nil
}
