package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BogBogdan/ot-node/internal/pkg/ctxutil"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestWithContextAddsTraceFields(t *testing.T) {
	log, logs := observed()
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{RequestID: "req-1", TraceID: "trace-1"})
	ctxutil.SetOperationID(ctx, "op-1")

	log.WithContext(ctx).Info("hello", "k", "v")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for key, want := range map[string]string{"request_id": "req-1", "trace_id": "trace-1", "operation_id": "op-1", "k": "v"} {
		if fields[key] != want {
			t.Fatalf("field %s: got %v want %s", key, fields[key], want)
		}
	}
}

func TestWithContextWithoutTraceData(t *testing.T) {
	log, _ := observed()
	if got := log.WithContext(context.Background()); got != log {
		t.Fatalf("expected the same logger when ctx carries nothing")
	}
}

func TestNewTestModeIsSilent(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("dropped")
	log.Sync()
}
