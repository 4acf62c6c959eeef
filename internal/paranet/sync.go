// Package paranet replicates the knowledge collections of a paranet into the paranet's
// own repository, one bounded batch per pass.
package paranet

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	appdb "github.com/BogBogdan/ot-node/internal/data/db"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	domainparanet "github.com/BogBogdan/ot-node/internal/domain/paranet"
	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/network"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const (
	ErrKindParanetMissing = "PARANET_DOES_NOT_EXIST"
	ErrKindCurated        = "CURATED_PARANET_NOT_SUPPORTED"
	ErrKindSyncMismatch   = "PARANET_SYNC_ASSET_MISMATCH"
)

type Config struct {
	RetriesMax        int
	RetryDelay        time.Duration
	BatchSize         int
	Concurrency       int
	DiscoveryPageSize int
	AllowCurated      bool
}

func (c Config) withDefaults() Config {
	if c.RetriesMax <= 0 {
		c.RetriesMax = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.DiscoveryPageSize <= 0 {
		c.DiscoveryPageSize = 100
	}
	return c
}

// Store is the part of the knowledge-graph store a sync writes through.
type Store interface {
	EnsureParanetRepository(ctx context.Context, repository string) error
	CreateKnowledgeCollectionGraphs(ctx context.Context, repository string, assetUALs []string, triplesPerAsset [][]string, v knowledge.Visibility) error
	InsertKnowledgeCollectionMetadata(ctx context.Context, repository string, statements []string) error
}

type SyncResult struct {
	ParanetUAL string `json:"paranetUAL"`
	Discovered int64  `json:"discovered"`
	Attempted  int    `json:"attempted"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
}

type SyncManager struct {
	db       *gorm.DB
	log      *logger.Logger
	paranets repos.ParanetRepo
	kcs      repos.ParanetKCRepo
	store    Store
	chain    blockchain.Client
	net      network.Client
	cfg      Config
}

func NewSyncManager(db *gorm.DB, baseLog *logger.Logger, paranets repos.ParanetRepo, kcs repos.ParanetKCRepo, store Store, chain blockchain.Client, net network.Client, cfg Config) *SyncManager {
	return &SyncManager{
		db:       db,
		log:      baseLog.With("service", "ParanetSyncManager"),
		paranets: paranets,
		kcs:      kcs,
		store:    store,
		chain:    chain,
		net:      net,
		cfg:      cfg.withDefaults(),
	}
}

func (m *SyncManager) RetriesMax() int { return m.cfg.RetriesMax }

// ValidateParanet checks that the paranet exists on chain and that its access policy is
// served by this node. It returns the paranet id and the parsed UAL.
func (m *SyncManager) ValidateParanet(ctx context.Context, paranetUAL string) (string, ual.UAL, error) {
	paranetID, u, err := ual.ParanetIDFromUAL(paranetUAL)
	if err != nil {
		return "", u, err
	}
	exists, err := m.chain.ParanetExists(ctx, u.Blockchain, paranetID)
	if err != nil {
		return "", u, err
	}
	if !exists {
		return "", u, apperr.Policy(ErrKindParanetMissing, "paranet %s does not exist", paranetUAL)
	}
	policy, err := m.chain.NodesAccessPolicy(ctx, u.Blockchain, paranetID)
	if err != nil {
		return "", u, err
	}
	if policy == domainparanet.AccessCurated && !m.cfg.AllowCurated {
		return "", u, apperr.Policy(ErrKindCurated, "paranet %s is curated; curated paranets are not enabled on this node", paranetUAL)
	}
	return paranetID, u, nil
}

// EnsureParanet validates the paranet, provisions its repository and creates the local
// record on first use.
func (m *SyncManager) EnsureParanet(ctx context.Context, paranetUAL string) (*types.Paranet, error) {
	paranetID, u, err := m.ValidateParanet(ctx, paranetUAL)
	if err != nil {
		return nil, err
	}
	if err := m.store.EnsureParanetRepository(ctx, ual.ParanetRepositoryName(paranetUAL)); err != nil {
		return nil, fmt.Errorf("provision paranet repository: %w", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	p, err := m.paranets.Get(dbc, paranetID, u.Blockchain)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	meta, err := m.chain.ParanetMetadata(ctx, u.Blockchain, paranetID)
	if err != nil {
		m.log.Warn("Paranet metadata unavailable", "paranet_ual", paranetUAL, "error", err)
	}
	p = &types.Paranet{
		ParanetID:    paranetID,
		BlockchainID: u.Blockchain,
		UAL:          paranetUAL,
		Name:         meta.Name,
		Description:  meta.Description,
	}
	if err := m.paranets.Create(dbc, p); err != nil {
		if !appdb.IsUniqueViolation(err) {
			return nil, err
		}
		// Registered concurrently by another sync.
		return m.paranets.Get(dbc, paranetID, u.Blockchain)
	}
	m.log.Info("Paranet registered", "paranet_ual", paranetUAL, "paranet_id", paranetID)
	return p, nil
}

// Discover enqueues collections the chain lists for the paranet beyond those already
// tracked. Enqueue ignores pairs that exist, so overlapping pages are harmless.
func (m *SyncManager) Discover(ctx context.Context, p *types.Paranet) (int64, error) {
	dbc := dbctx.Context{Ctx: ctx}
	offset, err := m.kcs.GetCount(dbc, p.UAL)
	if err != nil {
		return 0, err
	}
	var added int64
	for {
		page, err := m.chain.ParanetKnowledgeCollections(ctx, p.BlockchainID, p.ParanetID, int(offset), m.cfg.DiscoveryPageSize)
		if err != nil {
			return added, err
		}
		if len(page) == 0 {
			return added, nil
		}
		n, err := m.kcs.Enqueue(dbc, p.BlockchainID, p.UAL, page)
		if err != nil {
			return added, err
		}
		added += n
		offset += int64(len(page))
		if len(page) < m.cfg.DiscoveryPageSize {
			return added, nil
		}
	}
}

// EnqueueSync tracks the given collections for the paranet without consulting the chain.
func (m *SyncManager) EnqueueSync(ctx context.Context, paranetUAL, blockchainID string, uals []string) (int64, error) {
	return m.kcs.Enqueue(dbctx.Context{Ctx: ctx}, blockchainID, paranetUAL, uals)
}

// SyncParanet runs one pass: discover new collections, then attempt one batch. Items are
// independent; a failure only bumps that item's retry count.
func (m *SyncManager) SyncParanet(ctx context.Context, paranetUAL string) (SyncResult, error) {
	res := SyncResult{ParanetUAL: paranetUAL}
	p, err := m.EnsureParanet(ctx, paranetUAL)
	if err != nil {
		return res, err
	}
	if res.Discovered, err = m.Discover(ctx, p); err != nil {
		m.log.Warn("Paranet discovery failed, syncing known collections", "paranet_ual", paranetUAL, "error", err)
	}

	batch, err := m.kcs.GetSyncBatch(dbctx.Context{Ctx: ctx}, paranetUAL, m.cfg.RetriesMax, m.cfg.RetryDelay, m.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	res.Attempted = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	var synced, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, item := range batch {
		item := item
		g.Go(func() error {
			if err := m.syncOne(gctx, p, item); err != nil {
				atomic.AddInt64(&failed, 1)
				m.log.Warn("Paranet collection sync failed",
					"paranet_ual", paranetUAL,
					"ual", item.UAL,
					"retries", item.Retries+1,
					"error", err,
				)
				if ierr := m.kcs.IncrementRetries(dbctx.Context{Ctx: ctx}, item.UAL, paranetUAL, err.Error()); ierr != nil {
					m.log.Error("Failed to record sync failure", "ual", item.UAL, "error", ierr)
				}
				m.observe(paranetUAL, "failed")
				return nil
			}
			atomic.AddInt64(&synced, 1)
			m.observe(paranetUAL, "synced")
			return nil
		})
	}
	_ = g.Wait()
	res.Synced, res.Failed = int(synced), int(failed)
	m.log.Info("Paranet sync pass finished",
		"paranet_ual", paranetUAL,
		"discovered", res.Discovered,
		"attempted", res.Attempted,
		"synced", res.Synced,
		"failed", res.Failed,
	)
	return res, ctx.Err()
}

func (m *SyncManager) syncOne(ctx context.Context, p *types.Paranet, item *types.ParanetKC) error {
	u, err := ual.Parse(item.UAL)
	if err != nil {
		return err
	}
	collectionUAL := u.Collection().String()
	r, err := m.chain.KnowledgeAssetsRange(ctx, u.Blockchain, u.Contract, u.CollectionID)
	if err != nil {
		return fmt.Errorf("read token range: %w", err)
	}
	indices := r.Indices()
	if len(indices) == 0 {
		return m.markSynced(ctx, p, item, 0)
	}

	peers, err := m.net.FindShard(ctx, u.Blockchain)
	if err != nil {
		return fmt.Errorf("find shard: %w", err)
	}
	resp, err := m.net.Get(ctx, peers, network.GetRequest{
		UAL:             collectionUAL,
		Blockchain:      u.Blockchain,
		ParanetUAL:      p.UAL,
		Visibility:      knowledge.VisibilityPublic,
		IncludeMetadata: true,
	})
	if err != nil {
		return fmt.Errorf("network get: %w", err)
	}

	groups := graph.GroupBySubject(resp.Assertion.Public, true)
	if len(groups) != len(indices) {
		return apperr.WithKind(ErrKindSyncMismatch,
			fmt.Errorf("collection %s has %d live assets but %d subject groups", collectionUAL, len(indices), len(groups)))
	}
	assetUALs := make([]string, len(indices))
	for i, idx := range indices {
		assetUALs[i] = graph.AssetUAL(collectionUAL, idx)
	}

	repository := ual.ParanetRepositoryName(p.UAL)
	if err := m.store.CreateKnowledgeCollectionGraphs(ctx, repository, assetUALs, groups, knowledge.VisibilityPublic); err != nil {
		return fmt.Errorf("store collection: %w", err)
	}
	if len(resp.Metadata) > 0 {
		if err := m.store.InsertKnowledgeCollectionMetadata(ctx, repository, resp.Metadata); err != nil {
			return fmt.Errorf("store metadata: %w", err)
		}
	}
	return m.markSynced(ctx, p, item, int64(len(indices)))
}

// markSynced flips the record and bumps the paranet's asset count in one transaction.
// A record some earlier run already flipped adds nothing.
func (m *SyncManager) markSynced(ctx context.Context, p *types.Paranet, item *types.ParanetKC, assets int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		flipped, err := m.kcs.MarkAsSynced(dbc, item.UAL, item.ParanetUAL)
		if err != nil {
			return err
		}
		if !flipped || assets == 0 {
			return nil
		}
		return m.paranets.AddToKaCount(dbc, p.ParanetID, p.BlockchainID, assets)
	})
}

// Progress reports counts with the same predicate batch selection uses.
func (m *SyncManager) Progress(ctx context.Context, paranetUAL string) (types.ParanetSyncCounts, error) {
	if !ual.IsUAL(paranetUAL) {
		return types.ParanetSyncCounts{}, apperr.Validation("INVALID_UAL", "%s is not a UAL", paranetUAL)
	}
	return m.kcs.Counts(dbctx.Context{Ctx: ctx}, paranetUAL, m.cfg.RetriesMax)
}

func (m *SyncManager) observe(paranetUAL, result string) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ParanetSync(paranetUAL, result)
	}
}
