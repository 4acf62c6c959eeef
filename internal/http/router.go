package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/BogBogdan/ot-node/internal/http/handlers"
	httpMW "github.com/BogBogdan/ot-node/internal/http/middleware"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	Metrics        *observability.Metrics

	OperationHandler *httpH.OperationHandler
	ParanetHandler   *httpH.ParanetHandler
	RealtimeHandler  *httpH.RealtimeHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	// UALs travel as escaped path segments.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, "/metrics", "/healthcheck"))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/v1")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Operations
		if cfg.OperationHandler != nil {
			api.POST("/get", cfg.OperationHandler.Get)
			api.POST("/query", cfg.OperationHandler.Query)
			api.POST("/ask", cfg.OperationHandler.Ask)
			api.POST("/publish", cfg.OperationHandler.Publish)
			api.POST("/publish/finalization", cfg.OperationHandler.Finalize)
			api.GET("/:operation/:operationId", cfg.OperationHandler.Result)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/:operation/:operationId/events", cfg.RealtimeHandler.OperationEvents)
		}

		// Paranets
		if cfg.ParanetHandler != nil {
			api.GET("/paranets/:paranetUal/sync", cfg.ParanetHandler.SyncProgress)
		}
	}

	return r
}
