// Package logger wraps zap's sugared logger. The *Ctx variants prepend the
// correlation fields stored by pkg/logging (trace id, message id, raw message id,
// quarantine entry id) so every line of one ingestion can be joined.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"labor/internal/config"
	"labor/pkg/logging"
)

type Logger interface {
	Info(args ...interface{})
	Warn(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error

	DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
}

type zapLogger struct {
	*zap.SugaredLogger
	service string
}

// New builds the process logger. Format is "json" unless cfg asks for "console";
// an unparsable level falls back to info.
func New(cfg config.LoggingConfig, service string) (Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc.Encoding = "console"
	}
	zc.Level = zap.NewAtomicLevelAt(levelOf(cfg.Level))

	enc := &zc.EncoderConfig
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{SugaredLogger: z.Sugar(), service: service}, nil
}

func NopLogger() Logger {
	return &zapLogger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelOf(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (l *zapLogger) DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, l.withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Infow(msg, l.withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, l.withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, l.withContext(ctx, keysAndValues)...)
}

// withContext returns the context fields followed by kv. The binary's service name is
// added unless the context already names one.
func (l *zapLogger) withContext(ctx context.Context, kv []interface{}) []interface{} {
	fields := logging.GetLogFields(ctx)
	if l.service != "" && logging.GetServiceName(ctx) == "" {
		fields = append(fields, logging.ServiceNameKey, l.service)
	}
	return append(fields, kv...)
}
