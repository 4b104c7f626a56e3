// Package logging adapts zap to the nakama-common runtime.Logger interface so
// code outside the Nakama process logs through the same API as the server module.
package logging

import (
	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	fields map[string]interface{}
}

var _ runtime.Logger = (*zapLogger)(nil)

// NewZapLogger wraps a zap logger. A nil logger discards everything.
func NewZapLogger(l *zap.Logger) runtime.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{base: l, sugar: l.Sugar()}
}

// New builds a console logger at the given level ("debug", "info", "warn", "error").
func New(level string) (runtime.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// Nop returns a logger that discards everything.
func Nop() runtime.Logger {
	return NewZapLogger(nil)
}

func (z *zapLogger) Debug(format string, v ...interface{}) { z.sugar.Debugf(format, v...) }
func (z *zapLogger) Info(format string, v ...interface{})  { z.sugar.Infof(format, v...) }
func (z *zapLogger) Warn(format string, v ...interface{})  { z.sugar.Warnf(format, v...) }
func (z *zapLogger) Error(format string, v ...interface{}) { z.sugar.Errorf(format, v...) }

func (z *zapLogger) WithField(key string, v interface{}) runtime.Logger {
	return z.WithFields(map[string]interface{}{key: v})
}

func (z *zapLogger) WithFields(fields map[string]interface{}) runtime.Logger {
	merged := make(map[string]interface{}, len(z.fields)+len(fields))
	for k, v := range z.fields {
		merged[k] = v
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		merged[k] = v
		zf = append(zf, zap.Any(k, v))
	}
	child := z.base.With(zf...)
	return &zapLogger{base: child, sugar: child.Sugar(), fields: merged}
}

func (z *zapLogger) Fields() map[string]interface{} {
	return z.fields
}
