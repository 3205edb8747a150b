package logger

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger() {
	baseLogger = nil
	initBaseLoggerOnce = sync.Once{}
}

// observe replaces the base logger with an in-memory core for assertions.
func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	baseLogger = zap.New(core).Sugar()
	t.Cleanup(resetLogger)

	return logs
}

func TestInit(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			resetLogger()
			require.NoError(t, Init(level), level)
			assert.NotNil(t, baseLogger, level)
		}
	})

	t.Run("invalid level leaves logger unset", func(t *testing.T) {
		resetLogger()
		assert.Error(t, Init("verbose"))
		assert.Nil(t, baseLogger)
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init("debug"))
		first := baseLogger

		require.NoError(t, Init("error"))
		assert.Same(t, first, baseLogger)
	})
}

func TestDerive(t *testing.T) {
	t.Run("fields are carried by child contexts", func(t *testing.T) {
		logs := observe(t)

		ctx := Derive(t.Context(), "wallet.id", "w-1")
		ctx = Derive(ctx, "scan.run_id", "r-1")
		Info(ctx, "scan started", "scan.mode", "historical")

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "w-1", fields["wallet.id"])
		assert.Equal(t, "r-1", fields["scan.run_id"])
		assert.Equal(t, "historical", fields["scan.mode"])
	})

	t.Run("stores a sugared logger in the context", func(t *testing.T) {
		observe(t)

		ctx := Derive(t.Context())
		l, ok := ctx.Value(ctxKey).(*zap.SugaredLogger)
		assert.True(t, ok)
		assert.NotNil(t, l)
	})
}

func TestDeriveFromCtx(t *testing.T) {
	t.Run("adds trace identifiers of the active span", func(t *testing.T) {
		logs := observe(t)

		spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{0x01, 0x02},
			SpanID:  trace.SpanID{0x03},
		})
		ctx := trace.ContextWithSpanContext(t.Context(), spanCtx)

		Warn(ctx, "slow upstream")

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, spanCtx.TraceID().String(), fields["trace_id"])
		assert.Equal(t, spanCtx.SpanID().String(), fields["span_id"])
	})

	t.Run("no span means no trace fields", func(t *testing.T) {
		logs := observe(t)

		deriveFromCtx(t.Context(), "k", "v").Info("x")

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.NotContains(t, fields, "trace_id")
		assert.Equal(t, "v", fields["k"])
	})

	t.Run("uninitialized logger discards entries", func(t *testing.T) {
		resetLogger()
		assert.NotPanics(t, func() {
			Info(t.Context(), "dropped")
			_ = Derive(t.Context(), "k", "v")
		})
	})
}

func TestLevels(t *testing.T) {
	logs := observe(t)
	ctx := t.Context()

	Debug(ctx, "d")
	Info(ctx, "i")
	Warn(ctx, "w")
	Error(ctx, "e")
	assert.Panics(t, func() { Panic(ctx, "p") })

	levels := make([]zapcore.Level, 0, logs.Len())
	for _, entry := range logs.All() {
		levels = append(levels, entry.Level)
	}
	assert.Equal(t, []zapcore.Level{
		zapcore.DebugLevel,
		zapcore.InfoLevel,
		zapcore.WarnLevel,
		zapcore.ErrorLevel,
		zapcore.PanicLevel,
	}, levels)
}

func TestSync(t *testing.T) {
	t.Run("after init", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init("info"))
		assert.NotPanics(t, func() { _ = Sync() })
	})

	t.Run("without init panics", func(t *testing.T) {
		resetLogger()
		assert.Panics(t, func() { _ = Sync() })
	})
}

func TestFatal(t *testing.T) {
	if os.Getenv("LOGGER_FATAL_SUBPROCESS") == "1" {
		_ = Init("debug")
		Fatal(context.Background(), "unrecoverable", "wallet.id", "w-1")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal")
	cmd.Env = append(os.Environ(), "LOGGER_FATAL_SUBPROCESS=1")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "subprocess should exit with a non-zero status")
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, stdout.String(), `"level":"fatal"`)
	assert.Contains(t, stdout.String(), `"wallet.id":"w-1"`)
}

func TestNewContext(t *testing.T) {
	resetLogger()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := NewContext(t.Context(), zap.New(core))
	ctx = Derive(ctx, "wallet.id", "w-1")

	Info(ctx, "scoped", "tx.signature", "sig-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "w-1", fields["wallet.id"])
	assert.Equal(t, "sig-1", fields["tx.signature"])
}
