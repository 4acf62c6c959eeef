package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/commands/protocols"
	types "github.com/BogBogdan/ot-node/internal/domain"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type fakeOperations struct {
	id      uuid.UUID
	err     error
	lastGet protocols.GetInput
	lastPub protocols.PublishRequest
	lastQry protocols.QueryInput
	results map[uuid.UUID]*protocols.OperationResult
}

func (f *fakeOperations) StartGet(_ context.Context, in protocols.GetInput) (uuid.UUID, error) {
	f.lastGet = in
	return f.id, f.err
}

func (f *fakeOperations) StartQuery(_ context.Context, in protocols.QueryInput) (uuid.UUID, error) {
	f.lastQry = in
	return f.id, f.err
}

func (f *fakeOperations) StartAsk(context.Context, protocols.AskInput) (uuid.UUID, error) {
	return f.id, f.err
}

func (f *fakeOperations) StartPublish(_ context.Context, req protocols.PublishRequest) (uuid.UUID, error) {
	f.lastPub = req
	return f.id, f.err
}

func (f *fakeOperations) StartFinalization(context.Context, protocols.FinalizationEvent) (uuid.UUID, error) {
	return f.id, f.err
}

func (f *fakeOperations) Result(_ context.Context, id uuid.UUID) (*protocols.OperationResult, error) {
	if res, ok := f.results[id]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("operation %s: %w", id, apperr.ErrNotFound)
}

func operationRouter(svc OperationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOperationHandler(logger.NewNop(), svc)
	r := gin.New()
	r.POST("/v1/get", h.Get)
	r.POST("/v1/query", h.Query)
	r.POST("/v1/ask", h.Ask)
	r.POST("/v1/publish", h.Publish)
	r.GET("/v1/:operation/:operationId", h.Result)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStartOperationReturnsAccepted(t *testing.T) {
	svc := &fakeOperations{id: uuid.New()}
	r := operationRouter(svc)

	rec := do(r, http.MethodPost, "/v1/get", `{"id":"did:dkg:hardhat1:31337/0xabc/1","contentType":"public"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["operationId"] != svc.id.String() {
		t.Fatalf("operationId=%q", body["operationId"])
	}
	if svc.lastGet.UAL != "did:dkg:hardhat1:31337/0xabc/1" || svc.lastGet.ContentType != "public" {
		t.Fatalf("unexpected input: %+v", svc.lastGet)
	}
}

func TestQueryAcceptsRepositoryList(t *testing.T) {
	svc := &fakeOperations{id: uuid.New()}
	r := operationRouter(svc)

	rec := do(r, http.MethodPost, "/v1/query", `{"query":"SELECT * WHERE {?s ?p ?o}","type":"SELECT","repository":["dkg","privateCurrent"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.lastQry.Repository) != 2 || svc.lastQry.QueryType != "SELECT" {
		t.Fatalf("unexpected input: %+v", svc.lastQry)
	}
}

func TestStartOperationRejectsMissingFields(t *testing.T) {
	r := operationRouter(&fakeOperations{id: uuid.New()})

	cases := []struct {
		path string
		body string
	}{
		{"/v1/get", `{}`},
		{"/v1/query", `{"query":"SELECT"}`},
		{"/v1/ask", `{"minimumNumberOfNodeReplications":1}`},
		{"/v1/publish", `{"blockchain":"hardhat1:31337"}`},
		{"/v1/publish", `not json`},
	}
	for _, tc := range cases {
		rec := do(r, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status=%d", tc.path, tc.body, rec.Code)
		}
	}
}

func TestStartOperationMapsServiceErrors(t *testing.T) {
	svc := &fakeOperations{err: apperr.Validation(protocols.ErrKindInvalidDataset, "dataset has no public statements")}
	r := operationRouter(svc)

	rec := do(r, http.MethodPost, "/v1/publish", `{"blockchain":"hardhat1:31337","datasetRoot":"0x01","dataset":{"public":[]}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), protocols.ErrKindInvalidDataset) {
		t.Fatalf("missing error code: %s", rec.Body.String())
	}
}

func TestStartOperationStillReturnsFailedOperationID(t *testing.T) {
	svc := &fakeOperations{id: uuid.New(), err: fmt.Errorf("schedule failed")}
	r := operationRouter(svc)

	rec := do(r, http.MethodPost, "/v1/ask", `{"ual":"did:dkg:hardhat1:31337/0xabc/1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestResultReportsStatusAndData(t *testing.T) {
	completed, failed, pending := uuid.New(), uuid.New(), uuid.New()
	svc := &fakeOperations{results: map[uuid.UUID]*protocols.OperationResult{
		completed: {
			Operation: &types.Operation{ID: completed, Type: string(opstatus.TypeGet), Status: opstatus.StatusCompleted},
			Data:      json.RawMessage(`{"assertion":{"public":["<a> <b> <c> ."]}}`),
		},
		failed: {
			Operation: &types.Operation{ID: failed, Type: string(opstatus.TypePublishFinalization), Status: opstatus.StatusFailed,
				ErrorType: opstatus.ErrValidateMerkleRoot, ErrorMessage: "merkle root mismatch"},
		},
		pending: {
			Operation: &types.Operation{ID: pending, Type: string(opstatus.TypeQuery), Status: opstatus.QueryStart},
		},
	}}
	r := operationRouter(svc)

	rec := do(r, http.MethodGet, "/v1/get/"+completed.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("completed status=%d", rec.Code)
	}
	var got operationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != opstatus.StatusCompleted || got.Data == nil {
		t.Fatalf("unexpected completed body: %s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/v1/finalization/"+failed.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("failed status=%d", rec.Code)
	}
	got = operationResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ErrorType != opstatus.ErrValidateMerkleRoot || got.ErrorMessage == "" || got.Data != nil {
		t.Fatalf("unexpected failed body: %s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/v1/query/"+pending.String(), "")
	got = operationResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != opstatus.QueryStart || got.Data != nil {
		t.Fatalf("unexpected pending body: %s", rec.Body.String())
	}

	if rec := do(r, http.MethodGet, "/v1/publish/"+completed.String(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("wrong operation type: status=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/v1/get/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown operation: status=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/v1/get/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id: status=%d", rec.Code)
	}
}
