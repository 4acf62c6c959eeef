package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/commands/protocols"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/http/response"
	"github.com/BogBogdan/ot-node/internal/pkg/ctxutil"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// OperationService starts node operations and reads their results.
type OperationService interface {
	StartGet(ctx context.Context, in protocols.GetInput) (uuid.UUID, error)
	StartQuery(ctx context.Context, in protocols.QueryInput) (uuid.UUID, error)
	StartAsk(ctx context.Context, in protocols.AskInput) (uuid.UUID, error)
	StartPublish(ctx context.Context, req protocols.PublishRequest) (uuid.UUID, error)
	StartFinalization(ctx context.Context, ev protocols.FinalizationEvent) (uuid.UUID, error)
	Result(ctx context.Context, id uuid.UUID) (*protocols.OperationResult, error)
}

type OperationHandler struct {
	log     *logger.Logger
	service OperationService
}

func NewOperationHandler(log *logger.Logger, service OperationService) *OperationHandler {
	return &OperationHandler{
		log:     log.With("handler", "OperationHandler"),
		service: service,
	}
}

type getRequest struct {
	ID              string `json:"id" binding:"required"`
	Blockchain      string `json:"blockchain"`
	ContentType     string `json:"contentType"`
	IncludeMetadata bool   `json:"includeMetadata"`
	ParanetUAL      string `json:"paranetUAL"`
}

type queryRequest struct {
	Query      string                 `json:"query" binding:"required"`
	Type       string                 `json:"type" binding:"required"`
	Repository protocols.Repositories `json:"repository"`
	ParanetUAL string                 `json:"paranetUAL"`
}

type askRequest struct {
	UAL                 string `json:"ual" binding:"required"`
	MinimumReplications int    `json:"minimumNumberOfNodeReplications" binding:"gte=0"`
}

type publishRequest struct {
	Blockchain          string              `json:"blockchain" binding:"required"`
	DatasetRoot         string              `json:"datasetRoot" binding:"required"`
	Dataset             knowledge.Assertion `json:"dataset"`
	MinimumReplications int                 `json:"minimumNumberOfNodeReplications" binding:"gte=0"`
}

type finalizationRequest struct {
	Blockchain         string `json:"blockchain" binding:"required"`
	Contract           string `json:"contract" binding:"required"`
	CollectionID       uint64 `json:"collectionId" binding:"required"`
	MerkleRoot         string `json:"merkleRoot" binding:"required"`
	PublishOperationID string `json:"publishOperationId" binding:"required"`
	ByteSize           int64  `json:"byteSize"`
}

type operationResponse struct {
	Status       string `json:"status"`
	Data         any    `json:"data,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (h *OperationHandler) Get(c *gin.Context) {
	var req getRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.service.StartGet(c.Request.Context(), protocols.GetInput{
		Blockchain:      req.Blockchain,
		UAL:             req.ID,
		ParanetUAL:      req.ParanetUAL,
		ContentType:     knowledge.Visibility(req.ContentType),
		IncludeMetadata: req.IncludeMetadata,
	})
	h.accepted(c, id, err)
}

func (h *OperationHandler) Query(c *gin.Context) {
	var req queryRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.service.StartQuery(c.Request.Context(), protocols.QueryInput{
		Query:      req.Query,
		QueryType:  req.Type,
		Repository: req.Repository,
		ParanetUAL: req.ParanetUAL,
	})
	h.accepted(c, id, err)
}

func (h *OperationHandler) Ask(c *gin.Context) {
	var req askRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.service.StartAsk(c.Request.Context(), protocols.AskInput{
		UAL:                 req.UAL,
		MinimumReplications: req.MinimumReplications,
	})
	h.accepted(c, id, err)
}

func (h *OperationHandler) Publish(c *gin.Context) {
	var req publishRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.service.StartPublish(c.Request.Context(), protocols.PublishRequest{
		Blockchain:          req.Blockchain,
		DatasetRoot:         req.DatasetRoot,
		Dataset:             req.Dataset,
		MinimumReplications: req.MinimumReplications,
	})
	h.accepted(c, id, err)
}

func (h *OperationHandler) Finalize(c *gin.Context) {
	var req finalizationRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.service.StartFinalization(c.Request.Context(), protocols.FinalizationEvent{
		Blockchain:         req.Blockchain,
		Contract:           req.Contract,
		CollectionID:       req.CollectionID,
		MerkleRoot:         req.MerkleRoot,
		PublishOperationID: req.PublishOperationID,
		ByteSize:           req.ByteSize,
	})
	h.accepted(c, id, err)
}

// Result serves GET /v1/:operation/:operationId.
func (h *OperationHandler) Result(c *gin.Context) {
	id, err := uuid.Parse(c.Param("operationId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_operation_id", err)
		return
	}
	res, err := h.service.Result(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if !matchesOperation(c.Param("operation"), res.Operation.Type) {
		response.RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	out := operationResponse{Status: res.Operation.Status}
	switch res.Operation.Status {
	case opstatus.StatusCompleted:
		if len(res.Data) > 0 {
			out.Data = res.Data
		}
	case opstatus.StatusFailed:
		out.ErrorType = res.Operation.ErrorType
		out.ErrorMessage = res.Operation.ErrorMessage
	}
	response.RespondOK(c, out)
}

func (h *OperationHandler) accepted(c *gin.Context, id uuid.UUID, err error) {
	if id != uuid.Nil {
		ctxutil.SetOperationID(c.Request.Context(), id.String())
	}
	if err != nil {
		if id == uuid.Nil {
			response.RespondAppError(c, err)
			return
		}
		// The operation exists and already carries the failure.
		h.log.WithContext(c.Request.Context()).Warn("Operation failed to start", "error", err)
	}
	response.RespondAccepted(c, gin.H{"operationId": id.String()})
}

func matchesOperation(param, opType string) bool {
	param = strings.ToLower(param)
	if param == strings.ToLower(opType) {
		return true
	}
	return param == "finalization" && opType == string(opstatus.TypePublishFinalization)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	return true
}
