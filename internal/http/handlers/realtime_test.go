package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
)

func TestOperationEventsStreamsUntilTerminal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(logger.NewNop())
	h := NewRealtimeHandler(logger.NewNop(), hub)
	r := gin.New()
	r.GET("/v1/:operation/:operationId/events", h.OperationEvents)
	srv := httptest.NewServer(r)
	defer srv.Close()

	opID := uuid.NewString()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for hub.Subscribers(opID) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		hub.Broadcast(realtime.OperationEvent{OperationID: opID, Status: opstatus.PublishStart, Timestamp: time.Now()})
		hub.Broadcast(realtime.OperationEvent{OperationID: opID, Status: opstatus.StatusCompleted, Timestamp: time.Now()})
	}()

	resp, err := http.Get(srv.URL + "/v1/publish/" + opID + "/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(body)
	if !strings.Contains(out, opstatus.PublishStart) || !strings.Contains(out, opstatus.StatusCompleted) {
		t.Fatalf("unexpected stream: %s", out)
	}
	if strings.Count(out, "event:status") != 2 {
		t.Fatalf("expected two status events: %s", out)
	}
	if hub.Subscribers(opID) != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestOperationEventsRejectsInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRealtimeHandler(logger.NewNop(), realtime.NewHub(logger.NewNop()))
	r := gin.New()
	r.GET("/v1/:operation/:operationId/events", h.OperationEvents)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/get/nope/events", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}
