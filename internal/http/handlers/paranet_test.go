package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	types "github.com/BogBogdan/ot-node/internal/domain"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

type fakeProgress struct {
	counts map[string]types.ParanetSyncCounts
}

func (f fakeProgress) Progress(_ context.Context, paranetUAL string) (types.ParanetSyncCounts, error) {
	c, ok := f.counts[paranetUAL]
	if !ok {
		return c, apperr.Validation("INVALID_UAL", "%s is not a UAL", paranetUAL)
	}
	return c, nil
}

func TestSyncProgressDecodesEscapedUAL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const paranetUAL = "did:dkg:hardhat1:31337/0xabc/7/1"
	h := NewParanetHandler(fakeProgress{counts: map[string]types.ParanetSyncCounts{
		paranetUAL: {Total: 10, Synced: 7, Pending: 2, Exhausted: 1},
	}})
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.GET("/v1/paranets/:paranetUal/sync", h.SyncProgress)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/paranets/"+url.PathEscape(paranetUAL)+"/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got syncProgressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ParanetUAL != paranetUAL || got.Synced != 7 || got.Exhausted != 1 {
		t.Fatalf("unexpected body: %+v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/paranets/nope/sync", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid ual status=%d", rec.Code)
	}
}
