package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/http/response"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub}
}

// OperationEvents streams status events of one operation as SSE until it reaches a
// terminal status or the client disconnects.
func (h *RealtimeHandler) OperationEvents(c *gin.Context) {
	operationID := c.Param("operationId")
	if _, err := uuid.Parse(operationID); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_operation_id", err)
		return
	}
	sub := h.Hub.Subscribe(operationID)
	defer h.Hub.Unsubscribe(sub)
	h.Log.Debug("SSE stream open", "operation_id", operationID, "subscriber_id", sub.ID)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-sub.Outbound:
			if !ok {
				return false
			}
			c.SSEvent("status", ev)
			return !opstatus.IsTerminalStatus(ev.Status)
		}
	})
}
