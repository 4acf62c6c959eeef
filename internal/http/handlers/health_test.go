package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	cases := []struct {
		name   string
		checks map[string]HealthCheck
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all healthy", map[string]HealthCheck{"database": healthy}, http.StatusOK},
		{"database down", map[string]HealthCheck{"database": down, "tripleStore": healthy}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthcheck", NewHealthHandler(tc.checks).HealthCheck)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
			if rec.Code != tc.want {
				t.Fatalf("status=%d want=%d", rec.Code, tc.want)
			}
			if tc.want != http.StatusOK && !strings.Contains(rec.Body.String(), "database") {
				t.Fatalf("failing check not reported: %s", rec.Body.String())
			}
		})
	}
}
