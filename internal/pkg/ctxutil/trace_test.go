package ctxutil

import (
	"context"
	"testing"
)

func TestLogFieldsFollowOperationID(t *testing.T) {
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t-1", RequestID: "r-1"})
	if got := LogFields(ctx); len(got) != 4 {
		t.Fatalf("fields=%v", got)
	}
	SetOperationID(ctx, "op-1")
	got := LogFields(ctx)
	if len(got) != 6 || got[4] != "operation_id" || got[5] != "op-1" {
		t.Fatalf("fields=%v", got)
	}
}

func TestUntracedContext(t *testing.T) {
	ctx := context.Background()
	SetOperationID(ctx, "op-1")
	if LogFields(ctx) != nil || GetTraceData(ctx) != nil {
		t.Fatalf("expected no trace data")
	}
}
