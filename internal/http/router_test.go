package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	types "github.com/BogBogdan/ot-node/internal/domain"
	httpH "github.com/BogBogdan/ot-node/internal/http/handlers"
	httpMW "github.com/BogBogdan/ot-node/internal/http/middleware"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type staticProgress struct{}

func (staticProgress) Progress(context.Context, string) (types.ParanetSyncCounts, error) {
	return types.ParanetSyncCounts{Total: 1}, nil
}

func testRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	return NewRouter(RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, secret),
		ParanetHandler: httpH.NewParanetHandler(staticProgress{}),
		HealthHandler:  httpH.NewHealthHandler(nil),
	})
}

func TestRouterProtectsAPIButNotHealth(t *testing.T) {
	r := testRouter("secret")
	path := "/v1/paranets/" + url.PathEscape("did:dkg:hardhat1:31337/0xabc/7/1") + "/sync"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d", rec.Code)
	}
}

func TestRouterTagsResponsesWithRequestID(t *testing.T) {
	r := testRouter("")
	path := "/v1/paranets/" + url.PathEscape("did:dkg:hardhat1:31337/0xabc/7/1") + "/sync"

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("request id=%q", got)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("missing trace id")
	}
}
