package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Backend names accepted by New.
const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
	BackendLogrus  = "logrus"
)

// Config describes the logger to build with New.
type Config struct {
	// Backend is one of BackendSlog, BackendZerolog or BackendLogrus.
	// Empty means BackendSlog.
	Backend string
	// Level is the minimum enabled level.
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds the caller location (slog only).
	AddSource bool
	// NoColor disables ANSI colors (zerolog and logrus).
	NoColor bool
}

// New creates a Logger from cfg.
func New(cfg Config) (Logger, error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSlog:
		return newSlog(output, cfg.Level, cfg.AddSource), nil
	case BackendZerolog:
		return NewZerolog(output, cfg.Level, cfg.NoColor), nil
	case BackendLogrus:
		return NewLogrus(output, cfg.Level, cfg.NoColor), nil
	default:
		return nil, fmt.Errorf("logger: unknown backend %q", cfg.Backend)
	}
}
