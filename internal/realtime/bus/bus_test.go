package bus

import (
	"context"
	"testing"

	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
)

func TestMemoryBusForwards(t *testing.T) {
	b, err := New(logger.NewNop(), "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var got []realtime.OperationEvent
	if err := b.StartForwarder(context.Background(), func(ev realtime.OperationEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(context.Background(), realtime.OperationEvent{OperationID: "op", Status: "ASK_START"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Status != "ASK_START" {
		t.Fatalf("forwarded: %+v", got)
	}
	if err := b.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestRedisBusRequiresAddress(t *testing.T) {
	if _, err := NewRedisBus(logger.NewNop(), " ", ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
