package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/commands/executor"
	"github.com/BogBogdan/ot-node/internal/commands/protocols"
	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/config"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	"github.com/BogBogdan/ot-node/internal/kgstore"
	"github.com/BogBogdan/ot-node/internal/network"
	"github.com/BogBogdan/ot-node/internal/paranet"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime/bus"
	"github.com/BogBogdan/ot-node/internal/services"
	"github.com/BogBogdan/ot-node/internal/triplestore"
	"github.com/BogBogdan/ot-node/internal/ual"
)

type Services struct {
	Operations  services.OperationIDService
	TripleStore *triplestore.Client
	Knowledge   *kgstore.Store
	Pending     *pendingstorage.Storage
	Paranets    *paranet.SyncManager
	Executor    *executor.Executor
	Protocols   *protocols.Service
}

func wireRepos(db *gorm.DB, log *logger.Logger) repos.Set {
	log.Info("Wiring repos...")
	return repos.NewSet(db, log)
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg config.Config, reposet repos.Set, events bus.Bus) (Services, error) {
	log.Info("Wiring services...")

	cache, err := services.NewOperationResultCache(resultCacheDir(cfg), log)
	if err != nil {
		return Services{}, err
	}
	operations := services.NewOperationIDService(db, log, reposet.Operations, cache, events)

	ts, err := triplestore.New(cfg.TripleStore, log)
	if err != nil {
		return Services{}, fmt.Errorf("init triple store client: %w", err)
	}
	if err := ts.EnsureConnections(ctx); err != nil {
		return Services{}, fmt.Errorf("triple store: %w", err)
	}
	if err := provisionParanetRepositories(ctx, ts, cfg.AssetSync.SyncParanets); err != nil {
		return Services{}, fmt.Errorf("triple store: %w", err)
	}
	store := kgstore.New(ts, log)

	pending, err := pendingstorage.New(cfg.Node.DataDir, log)
	if err != nil {
		return Services{}, err
	}

	// Chain and peer access live outside this node; both refuse calls until wired.
	var (
		chain blockchain.Client = blockchain.NotConfigured{}
		net   network.Client    = network.NotConfigured{}
	)

	syncer := paranet.NewSyncManager(db, log, reposet.Paranets, reposet.ParanetKCs, store, chain, net, cfg.Sync())

	registry := runtime.NewRegistry()
	if err := protocols.RegisterAll(registry, protocols.Deps{
		Log:      log,
		Tracker:  operations,
		Store:    store,
		Query:    ts,
		Chain:    chain,
		Network:  net,
		Pending:  pending,
		Paranets: syncer,
		Commands: reposet.Commands,
		Config:   cfg.Protocol(),
	}); err != nil {
		return Services{}, fmt.Errorf("register commands: %w", err)
	}
	exec := executor.New(db, log, reposet.Commands, operations, registry, cfg.Executor())

	return Services{
		Operations:  operations,
		TripleStore: ts,
		Knowledge:   store,
		Pending:     pending,
		Paranets:    syncer,
		Executor:    exec,
		Protocols:   protocols.NewService(log, operations, exec, chain, pending, reposet.Commands, cfg.Protocol()),
	}, nil
}

// provisionParanetRepositories makes every synced paranet queryable before its first sync pass.
func provisionParanetRepositories(ctx context.Context, ts *triplestore.Client, paranetUALs []string) error {
	for _, p := range paranetUALs {
		if err := ts.EnsureParanetRepository(ctx, ual.ParanetRepositoryName(p)); err != nil {
			return fmt.Errorf("provision paranet %s: %w", p, err)
		}
	}
	return nil
}
