package types

// Logger is the capability set every bus component logs through. It
// mirrors the teacher library's types.Logger interface shape so that any
// logging backend (logrus, a test recorder, a no-op) can be swapped in.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}
