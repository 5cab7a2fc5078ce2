// Package logger is the process-wide logging facade. It starts as a no-op and
// is switched to zap by the CLI once flags and config are parsed.
package logger

import "sync/atomic"

// Logger is the leveled, printf-style logger used across the gateway.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
}

type holder struct{ l Logger }

var current atomic.Pointer[holder]

func init() {
	current.Store(&holder{l: nopLogger{}})
}

func get() Logger { return current.Load().l }

// Set installs l as the global logger. A nil l restores the no-op logger.
func Set(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	current.Store(&holder{l: l})
}

// Default returns the installed global logger.
func Default() Logger { return get() }

// Debug logs a debug message
func Debug(v ...interface{}) {
	get().Debug(v...)
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

// Info logs an info message
func Info(v ...interface{}) {
	get().Info(v...)
}

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) {
	get().Infof(format, v...)
}

// Warn logs a warning message
func Warn(v ...interface{}) {
	get().Warn(v...)
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

// Error logs an error message
func Error(v ...interface{}) {
	get().Error(v...)
}

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

// Fatal logs a fatal message and exits
func Fatal(v ...interface{}) {
	get().Fatal(v...)
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, v ...interface{}) {
	get().Fatalf(format, v...)
}

// nopLogger discards everything until a real logger is installed
type nopLogger struct{}

func (nopLogger) Debug(...interface{})          {}
func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Info(...interface{})           {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warn(...interface{})           {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Error(...interface{})          {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Fatal(...interface{})          {}
func (nopLogger) Fatalf(string, ...interface{}) {}
