package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/logger"
	"github.com/arloliu/go-ercp/transport"
)

// Environment variables overriding the configuration file.
const (
	EnvPort       = "ERCP_PORT"
	EnvLogLevel   = "ERCP_LOG_LEVEL"
	EnvLogBackend = "ERCP_LOG_BACKEND"
)

// Config is the configuration of one CLI run.
//
// Values come from defaults, then the configuration file, then the environment, then flags.
type Config struct {
	Basic        bool
	Port         string
	Baud         int
	Timeout      time.Duration
	LinkTimeout  time.Duration
	LogTimeout   time.Duration
	FrameTimeout time.Duration
	RetryLimit   int
	LogLevel     logger.Level
	LogBackend   string
	MetricsAddr  string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Baud:         transport.DefaultBaud,
		Timeout:      ercp.NoTimeout,
		LinkTimeout:  transport.DefaultReadTimeout,
		LogTimeout:   ercp.NoTimeout,
		FrameTimeout: ercp.DefaultFrameTimeout,
		RetryLimit:   ercp.DefaultRetryLimit,
		LogLevel:     logger.WarnLevel,
		LogBackend:   logger.BackendSlog,
	}
}

type fileConfig struct {
	Protocol     string `toml:"protocol"`
	Port         string `toml:"port"`
	Baud         int    `toml:"baud"`
	Timeout      string `toml:"timeout"`
	LinkTimeout  string `toml:"link_timeout"`
	LogTimeout   string `toml:"log_timeout"`
	FrameTimeout string `toml:"frame_timeout"`
	RetryLimit   int    `toml:"retry_limit"`
	LogLevel     string `toml:"log_level"`
	LogBackend   string `toml:"log_backend"`
	MetricsAddr  string `toml:"metrics_addr"`
}

// LoadConfigFile applies the keys defined in the TOML file at path to cfg.
func LoadConfigFile(path string, cfg *Config) error {
	var raw fileConfig

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("protocol") {
		switch strings.TrimSpace(raw.Protocol) {
		case "basic":
			cfg.Basic = true
		default:
			return fmt.Errorf("load config: unknown protocol %q", raw.Protocol)
		}
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}

	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", raw.Timeout, &cfg.Timeout},
		{"link_timeout", raw.LinkTimeout, &cfg.LinkTimeout},
		{"log_timeout", raw.LogTimeout, &cfg.LogTimeout},
		{"frame_timeout", raw.FrameTimeout, &cfg.FrameTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}

		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("retry_limit") {
		cfg.RetryLimit = raw.RetryLimit
	}

	if meta.IsDefined("log_level") {
		if err := cfg.setLogLevel(raw.LogLevel); err != nil {
			return err
		}
	}

	if meta.IsDefined("log_backend") {
		cfg.LogBackend = strings.TrimSpace(raw.LogBackend)
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	return nil
}

// ApplyEnv applies the environment overrides read through getenv.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvPort)); v != "" {
		cfg.Port = v
	}

	if v := getenv(EnvLogLevel); strings.TrimSpace(v) != "" {
		if err := cfg.setLogLevel(v); err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
	}

	if v := strings.TrimSpace(getenv(EnvLogBackend)); v != "" {
		cfg.LogBackend = v
	}

	return nil
}

func (cfg *Config) setLogLevel(raw string) error {
	level, ok := logger.ParseLevel(raw)
	if !ok {
		return fmt.Errorf("invalid log level %q", raw)
	}
	cfg.LogLevel = level

	return nil
}
