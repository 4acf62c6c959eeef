package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/config"
	apphttp "github.com/BogBogdan/ot-node/internal/http"
	httpH "github.com/BogBogdan/ot-node/internal/http/handlers"
	httpMW "github.com/BogBogdan/ot-node/internal/http/middleware"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Operation *httpH.OperationHandler
	Paranet   *httpH.ParanetHandler
	Realtime  *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(map[string]httpH.HealthCheck{
			"database":    pingDB(db),
			"tripleStore": services.TripleStore.Ping,
		}),
		Operation: httpH.NewOperationHandler(log, services.Protocols),
		Paranet:   httpH.NewParanetHandler(services.Paranets),
		Realtime:  httpH.NewRealtimeHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger, cfg config.Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.Server.AuthSecret),
	}
}

func routerConfig(log *logger.Logger, cfg config.Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:              log,
		ServiceName:      serviceName(cfg),
		CORSOrigins:      cfg.Server.CORSOrigins,
		AuthMiddleware:   middleware.Auth,
		Metrics:          metrics,
		OperationHandler: handlers.Operation,
		ParanetHandler:   handlers.Paranet,
		RealtimeHandler:  handlers.Realtime,
		HealthHandler:    handlers.Health,
	}
}

// serviceName names request spans. Without tracing the middleware is skipped.
func serviceName(cfg config.Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.Otel.ServiceName
}

func pingDB(db *gorm.DB) httpH.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
