package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ZerologLogger is a Logger backed by zerolog with a human readable console writer.
type ZerologLogger struct {
	logger zerolog.Logger
	level  *atomic.Int32
}

var _ Logger = (*ZerologLogger)(nil)

// NewZerolog creates a zerolog based logger writing to output.
// A nil output means os.Stderr.
func NewZerolog(output io.Writer, level Level, noColor bool) Logger {
	if output == nil {
		output = os.Stderr
	}

	writer := zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}

	inst := &ZerologLogger{
		logger: zerolog.New(writer).With().Timestamp().Logger(),
		level:  &atomic.Int32{},
	}
	inst.level.Store(int32(level))

	return inst
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.log(DebugLevel, msg, keysAndValues)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.log(InfoLevel, msg, keysAndValues)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.log(WarnLevel, msg, keysAndValues)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.log(ErrorLevel, msg, keysAndValues)
}

func (l *ZerologLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.WithLevel(zerolog.FatalLevel).Fields(keysAndValues).Msg(msg)
	os.Exit(1)
}

func (l *ZerologLogger) With(keyValues ...any) Logger {
	return &ZerologLogger{
		logger: l.logger.With().Fields(keyValues).Logger(),
		level:  l.level,
	}
}

func (l *ZerologLogger) Level() Level {
	return Level(l.level.Load())
}

func (l *ZerologLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *ZerologLogger) log(level Level, msg string, keysAndValues []any) {
	if level < l.Level() {
		return
	}

	l.logger.WithLevel(toZerologLevel(level)).
		Fields(keysAndValues).
		Msg(msg)
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}
