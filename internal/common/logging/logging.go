package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// Options mirrors the LOG_* environment block.
type Options struct {
	Level    string
	Format   string
	Output   string
	File     bool
	FilePath string
}

var base = zap.NewNop()

// Init builds the process logger from the options and installs it as the
// package default returned by L and FromContext.
func Init(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	newEncoder := zapcore.NewConsoleEncoder
	if opts.Format == "json" {
		newEncoder = zapcore.NewJSONEncoder
	}

	var sinks []zapcore.WriteSyncer
	if opts.Output == "" || opts.Output == "stdout" {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}
	if opts.File && opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	cores := make([]zapcore.Core, 0, len(sinks))
	for _, sink := range sinks {
		cores = append(cores, zapcore.NewCore(newEncoder(encCfg), sink, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	base = logger
	return logger, nil
}

// L returns the process logger, a nop logger before Init runs.
func L() *zap.Logger { return base }

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext prefers the request-scoped logger and falls back to the
// process one.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return base
}

// WithRequestID stores the id on the context and stamps it onto the context
// logger so every line of the request carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	return WithLogger(ctx, FromContext(ctx).With(zap.String("request_id", id)))
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
