// Package logging provides the Logger capability threaded through the
// engine. There is no process-wide logging configuration (spec §9's
// "Global mutable state" redesign note): a Logger is constructed once by
// the caller and passed down explicitly, the same shape as the teacher's
// pkg/mcast/definition.DefaultLogger but backed by a structured logger
// instead of a raw stdlib one.
package logging

import "go.uber.org/zap"

// Logger is the capability interface threaded from the engine downward.
// Its shape mirrors the teacher's definition.Logger: leveled methods, but
// taking structured key/value pairs in the spirit of drand's log.Logger
// (Infow/Debugw/Errorw) and with no formatted variants.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Named(name string) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewDefault builds the default production Logger: a zap.SugaredLogger in
// its standard console/JSON configuration.
func NewDefault() Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &zapLogger{sugar: base.Sugar()}
}

// NewDevelopment builds a human-readable Logger suitable for local runs and
// tests.
func NewDevelopment() Logger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return &zapLogger{sugar: base.Sugar()}
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{sugar: l.sugar.Named(name)}
}
