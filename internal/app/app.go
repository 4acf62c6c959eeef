package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/config"
	"github.com/BogBogdan/ot-node/internal/data/db"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	apphttp "github.com/BogBogdan/ot-node/internal/http"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
	"github.com/BogBogdan/ot-node/internal/realtime/bus"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	ConfigPath string
	Version    string
}

type App struct {
	Log      *logger.Logger
	Cfg      config.Config
	DB       *gorm.DB
	Repos    repos.Set
	Services Services
	Hub      *realtime.Hub
	Bus      bus.Bus
	Server   *apphttp.Server

	pg           *db.PostgresService
	shutdownOtel func(context.Context) error
	cancel       context.CancelFunc
}

// New loads the config and wires every component. Nothing runs until Start.
func New(ctx context.Context, log *logger.Logger, opts Options) (*App, error) {
	log.Info("Loading config...")
	cfg, err := config.Load(opts.ConfigPath, log)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	shutdownOtel := observability.InitOTel(ctx, log, cfg.Tracing(opts.Version))
	metrics := observability.Init(log, cfg.Metrics.Enabled)

	pg, err := OpenDatabase(cfg, log)
	if err != nil {
		_ = shutdownOtel(ctx)
		return nil, err
	}
	theDB := pg.DB()

	events, err := bus.New(log, cfg.Redis.Addr, cfg.Redis.Channel)
	if err != nil {
		_ = pg.Close()
		_ = shutdownOtel(ctx)
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	hub := realtime.NewHub(log)

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(ctx, theDB, log, cfg, reposet, events)
	if err != nil {
		_ = events.Close()
		_ = pg.Close()
		_ = shutdownOtel(ctx)
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset, hub)
	middleware := wireMiddleware(log, cfg)
	server := apphttp.NewServer(routerConfig(log, cfg, handlerset, middleware, metrics))

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Repos:        reposet,
		Services:     serviceset,
		Hub:          hub,
		Bus:          events,
		Server:       server,
		pg:           pg,
		shutdownOtel: shutdownOtel,
	}, nil
}

// OpenDatabase connects to the operational database and migrates its schema.
func OpenDatabase(cfg config.Config, log *logger.Logger) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(cfg.DB(), log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	return pg, nil
}

// Start launches the background parts: event forwarding, the command executor and the
// periodic housekeeping commands.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	if err := a.Services.Protocols.ScheduleHousekeeping(ctx); err != nil {
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	a.Services.Executor.Start(ctx)
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Server.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP server shutdown failed", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func resultCacheDir(cfg config.Config) string {
	if cfg.Node.DataDir == "" {
		return ""
	}
	return filepath.Join(cfg.Node.DataDir, "operation_id_cache")
}
