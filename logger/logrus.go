package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusLogger is a Logger backed by logrus with its text formatter.
type LogrusLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*LogrusLogger)(nil)

// NewLogrus creates a logrus based logger writing to output.
// A nil output means os.Stderr.
func NewLogrus(output io.Writer, level Level, noColor bool) Logger {
	if output == nil {
		output = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(toLogrusLevel(level))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   noColor,
	})

	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...any) {
	l.entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(toFields(keysAndValues)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, keysAndValues ...any) {
	l.entry.WithFields(toFields(keysAndValues)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...any) {
	l.entry.WithFields(toFields(keysAndValues)).Error(msg)
}

// Fatal relies on logrus calling os.Exit(1) after the entry is written.
func (l *LogrusLogger) Fatal(msg string, keysAndValues ...any) {
	l.entry.WithFields(toFields(keysAndValues)).Fatal(msg)
}

// With shares the underlying logrus.Logger, so the level is shared with the parent.
func (l *LogrusLogger) With(keyValues ...any) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(toFields(keyValues))}
}

func (l *LogrusLogger) Level() Level {
	switch l.entry.Logger.GetLevel() {
	case logrus.TraceLevel, logrus.DebugLevel:
		return DebugLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

func (l *LogrusLogger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(toLogrusLevel(level))
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.FatalLevel
	}
}

// toFields converts alternating key-value pairs into logrus fields.
// A dangling key is stored under "!BADKEY", matching slog.
func toFields(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			fields["!BADKEY"] = keysAndValues[i]
			break
		}

		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}

	return fields
}
