package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var zapBase atomic.Pointer[zap.Logger]

// ReplaceLogger routes the global facade through z.
func ReplaceLogger(z *zap.Logger) {
	if z == nil {
		z = zap.NewNop()
	}
	zapBase.Store(z)
	Set(NewZap(z))
}

// GetLogger returns the zap logger behind the facade, or a no-op logger when
// none was installed.
func GetLogger() *zap.Logger {
	if z := zapBase.Load(); z != nil {
		return z
	}
	return zap.NewNop()
}

// Sync flushes buffered entries of the installed zap logger.
func Sync() error {
	if z := zapBase.Load(); z != nil {
		return z.Sync()
	}
	return nil
}

// NewZap adapts a zap logger to the Logger interface.
func NewZap(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(v ...interface{})                 { l.s.Debug(v...) }
func (l *zapLogger) Debugf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
func (l *zapLogger) Info(v ...interface{})                  { l.s.Info(v...) }
func (l *zapLogger) Infof(format string, v ...interface{})  { l.s.Infof(format, v...) }
func (l *zapLogger) Warn(v ...interface{})                  { l.s.Warn(v...) }
func (l *zapLogger) Warnf(format string, v ...interface{})  { l.s.Warnf(format, v...) }
func (l *zapLogger) Error(v ...interface{})                 { l.s.Error(v...) }
func (l *zapLogger) Errorf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l *zapLogger) Fatal(v ...interface{})                 { l.s.Fatal(v...) }
func (l *zapLogger) Fatalf(format string, v ...interface{}) { l.s.Fatalf(format, v...) }
