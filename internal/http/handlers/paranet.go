package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/http/response"
)

type SyncProgress interface {
	Progress(ctx context.Context, paranetUAL string) (types.ParanetSyncCounts, error)
}

type ParanetHandler struct {
	progress SyncProgress
}

func NewParanetHandler(progress SyncProgress) *ParanetHandler {
	return &ParanetHandler{progress: progress}
}

type syncProgressResponse struct {
	ParanetUAL string `json:"paranetUal"`
	types.ParanetSyncCounts
}

func (h *ParanetHandler) SyncProgress(c *gin.Context) {
	paranetUAL := c.Param("paranetUal")
	counts, err := h.progress.Progress(c.Request.Context(), paranetUAL)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, syncProgressResponse{ParanetUAL: paranetUAL, ParanetSyncCounts: counts})
}
