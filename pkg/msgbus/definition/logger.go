// Package definition holds the ambient-stack defaults that every bus
// component reaches for unless a caller substitutes its own: the default
// logger and the configuration defaults
// named in spec §5/§6. It mirrors the role the teacher library's
// definition package plays (NewDefaultLogger, NewDefaultStorage).
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// LogrusLogger adapts github.com/sirupsen/logrus to the bus's types.Logger
// interface, tagging every line with a component field the way a
// production router/endpoint/bridge would when several run in one process.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger returns a LogrusLogger writing structured, leveled text
// to stderr, tagged with component.
func NewDefaultLogger(component string) *LogrusLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &LogrusLogger{entry: base.WithField("component", component)}
}

// With returns a logger with an additional structured field, e.g. the
// router or endpoint id once it becomes known.
func (l *LogrusLogger) With(key string, value interface{}) *LogrusLogger {
	return &LogrusLogger{entry: l.entry.WithField(key, value)}
}

// ToggleDebug flips the underlying logger's level between Info and Debug,
// matching the teacher's DefaultLogger.ToggleDebug.
func (l *LogrusLogger) ToggleDebug(enabled bool) bool {
	if enabled {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return enabled
}

func (l *LogrusLogger) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *LogrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

var _ types.Logger = (*LogrusLogger)(nil)

// noopLogger discards everything; used by tests that don't want log noise,
// mirroring the teacher's pattern of toggling debug off in test harnesses.
type noopLogger struct{}

// NewNoopLogger returns a types.Logger that discards all output.
func NewNoopLogger() types.Logger { return noopLogger{} }

func (noopLogger) Info(args ...interface{})                 {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Warn(args ...interface{})                  {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Error(args ...interface{})                 {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
func (noopLogger) Debug(args ...interface{})                 {}
func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Fatal(args ...interface{})                 {}
func (noopLogger) Fatalf(format string, args ...interface{}) {}
