package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

func recvEvent(t *testing.T, ch <-chan OperationEvent, timeout time.Duration) OperationEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for operation event")
	}
	return OperationEvent{}
}

func TestHubOrderingAndIsolation(t *testing.T) {
	hub := NewHub(logger.NewNop())
	opA := uuid.NewString()
	opB := uuid.NewString()

	subA := hub.Subscribe(opA)
	subB := hub.Subscribe(opB)

	hub.Broadcast(OperationEvent{OperationID: opA, Status: "GET_START"})
	hub.Broadcast(OperationEvent{OperationID: opA, Status: "GET_END"})

	if got := recvEvent(t, subA.Outbound, time.Second); got.Status != "GET_START" {
		t.Fatalf("first event: want=GET_START got=%s", got.Status)
	}
	if got := recvEvent(t, subA.Outbound, time.Second); got.Status != "GET_END" {
		t.Fatalf("second event: want=GET_END got=%s", got.Status)
	}
	select {
	case ev := <-subB.Outbound:
		t.Fatalf("subscriber of another operation got %+v", ev)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(logger.NewNop())
	op := uuid.NewString()
	sub := hub.Subscribe(op)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if _, ok := <-sub.Outbound; ok {
		t.Fatalf("outbound should be closed after unsubscribe")
	}
	if n := hub.Subscribers(op); n != 0 {
		t.Fatalf("subscribers: want=0 got=%d", n)
	}
	hub.Broadcast(OperationEvent{OperationID: op, Status: "GET_START"})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(logger.NewNop())
	op := uuid.NewString()
	sub := hub.Subscribe(op)
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Broadcast(OperationEvent{OperationID: op, Status: "QUERY_START"})
	}
	if len(sub.Outbound) != subscriberBuffer {
		t.Fatalf("buffered: want=%d got=%d", subscriberBuffer, len(sub.Outbound))
	}
}
