// Package logger provides a global, sugared Zap logger whose entries are
// enriched with the request-scoped fields carried in a context.Context.
//
// Fields can be attached to a context with Derive; every log call made with
// that context (or any child of it) includes them. When the context carries a
// valid OpenTelemetry span, the trace and span identifiers are added as well,
// so log lines can be correlated with traces emitted by the telemetry package.
package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextKey is an unexported type for the context key holding a derived logger.
type contextKey struct{}

var (
	// baseLogger is the process-wide logger. It is initialized once by Init.
	baseLogger *zap.SugaredLogger

	// initBaseLoggerOnce guards the one-time initialization of baseLogger.
	initBaseLoggerOnce sync.Once

	// ctxKey is the context key under which derived loggers are stored.
	ctxKey = contextKey{}

	// nopLogger backs log calls made before Init, which is what package tests do.
	nopLogger = zap.NewNop().Sugar()
)

// Init configures the global logger to emit JSON to stdout at the given
// level ("debug", "info", "warn", "error", "panic", "fatal").
//
// The level is validated on every call, but only the first successful call
// configures the logger; later calls are no-ops.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	initBaseLoggerOnce.Do(func() {
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			lvl,
		)

		baseLogger = zap.New(core).Sugar()
	})

	return nil
}

// Sync flushes any buffered log entries. Call it on shutdown.
func Sync() error {
	return baseLogger.Sync()
}

// fromCtx returns the logger stored in ctx, falling back to the base logger.
func fromCtx(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey).(*zap.SugaredLogger); ok && l != nil {
		return l
	}

	if baseLogger != nil {
		return baseLogger
	}

	return nopLogger
}

// deriveFromCtx returns the logger stored in ctx (or the base logger),
// extended with the trace identifiers of the active span and keysAndValues.
func deriveFromCtx(ctx context.Context, keysAndValues ...any) *zap.SugaredLogger {
	l := fromCtx(ctx)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		l = l.With("trace_id", spanCtx.TraceID().String())
	}
	if spanCtx.HasSpanID() {
		l = l.With("span_id", spanCtx.SpanID().String())
	}

	if len(keysAndValues) > 0 {
		l = l.With(keysAndValues...)
	}

	return l
}

// Derive returns a child context whose logger carries keysAndValues on every
// entry logged through it.
//
//	ctx = logger.Derive(ctx, "wallet.id", id)
//	logger.Info(ctx, "scan started") // includes wallet.id
func Derive(ctx context.Context, keysAndValues ...any) context.Context {
	return context.WithValue(ctx, ctxKey, fromCtx(ctx).With(keysAndValues...))
}

// NewContext returns a child context that logs through l instead of the
// base logger. Fields derived later are added on top of l.
func NewContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey, l.Sugar())
}

// log writes msg at level using the logger derived from ctx.
func log(ctx context.Context, level zapcore.Level, msg string, keysAndValues ...any) {
	deriveFromCtx(ctx).Logw(level, msg, keysAndValues...)
}

// Debug logs a debug-level message with optional key/value context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.DebugLevel, msg, keysAndValues...)
}

// Info logs an info-level message with optional key/value context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.InfoLevel, msg, keysAndValues...)
}

// Warn logs a warn-level message with optional key/value context.
func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.WarnLevel, msg, keysAndValues...)
}

// Error logs an error-level message with optional key/value context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.ErrorLevel, msg, keysAndValues...)
}

// Panic logs a panic-level message (and then panics) with optional key/value context.
func Panic(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.PanicLevel, msg, keysAndValues...)
}

// Fatal logs a fatal-level message (and then exits) with optional key/value context.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.FatalLevel, msg, keysAndValues...)
}
