// Package protocols holds the command handlers behind every node operation and the
// entry points that create an operation and schedule its first command.
package protocols

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/kgstore"
	"github.com/BogBogdan/ot-node/internal/network"
	"github.com/BogBogdan/ot-node/internal/paranet"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/triplestore"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const (
	GetValidateAssetCommand            = "getValidateAssetCommand"
	LocalGetCommand                    = "localGetCommand"
	NetworkGetCommand                  = "networkGetCommand"
	QueryCommand                       = "queryCommand"
	AskFindShardCommand                = "askFindShardCommand"
	NetworkAskCommand                  = "networkAskCommand"
	PublishFindShardCommand            = "publishFindShardCommand"
	NetworkPublishCommand              = "networkPublishCommand"
	ReadCachedPublishDataCommand       = "readCachedPublishDataCommand"
	ValidateAssertionMerkleRootCommand = "validateAssertionMerkleRootCommand"
	StoreAssertionCommand              = "storeAssertionCommand"
	ParanetSyncCommand                 = "paranetSyncCommand"
	CommandsCleanerCommand             = "commandsCleanerCommand"
	OperationIDCleanerCommand          = "operationIdCleanerCommand"
)

var (
	GetSequence          = []string{LocalGetCommand, NetworkGetCommand}
	AskSequence          = []string{NetworkAskCommand}
	PublishSequence      = []string{NetworkPublishCommand}
	FinalizationSequence = []string{ValidateAssertionMerkleRootCommand, StoreAssertionCommand}
)

// Tracker is the operation service surface handlers report through.
type Tracker interface {
	UpdateOperationIDStatus(dbc dbctx.Context, id uuid.UUID, blockchain, status string) error
	EmitChangeEvent(dbc dbctx.Context, status string, id uuid.UUID, blockchain string)
	MarkOperationAsCompleted(dbc dbctx.Context, id uuid.UUID, blockchain string, result any, statusSequence []string) (bool, error)
	MarkOperationAsFailed(dbc dbctx.Context, id uuid.UUID, blockchain, message, errorKind string) (bool, error)
	RemoveExpired(dbc dbctx.Context, olderThan time.Time, limit int) (int, error)
}

// KnowledgeStore is the knowledge-graph store surface handlers read and write through.
type KnowledgeStore interface {
	GetKnowledgeCollection(ctx context.Context, repository, collectionUAL string, r knowledge.TokenRange, v knowledge.Visibility) (knowledge.Assertion, error)
	GetKnowledgeAsset(ctx context.Context, repository, assetUAL string, v knowledge.Visibility) ([]string, error)
	GetKnowledgeCollectionMetadata(ctx context.Context, repository, collectionUAL string) ([]string, error)
	GetKnowledgeAssetMetadata(ctx context.Context, repository, assetUAL string) ([]string, error)
	GetLatestAssertionID(ctx context.Context, repository, assetUAL string) (string, error)
	ReadLegacy(ctx context.Context, assertionID string) ([]string, string, error)
	InsertGraphs(ctx context.Context, repository string, inserts []triplestore.GraphInsert) error
	InsertKnowledgeCollectionMetadata(ctx context.Context, repository string, statements []string) error
	InsertIntoUnifiedGraph(ctx context.Context, repository, namedGraph string, in kgstore.UnifiedAssets) error
	EnsureParanetRepository(ctx context.Context, repository string) error
}

// QueryStore runs user queries.
type QueryStore interface {
	Construct(ctx context.Context, repository, query string) ([]string, error)
	Select(ctx context.Context, repository, query string) ([]map[string]string, error)
	HasRepository(name string) bool
	RewriteFederated(query string, resolve triplestore.Resolver) (string, error)
	EnsureParanetRepository(ctx context.Context, repository string) error
}

// ParanetSyncer is the paranet manager surface handlers need.
type ParanetSyncer interface {
	ValidateParanet(ctx context.Context, paranetUAL string) (string, ual.UAL, error)
	SyncParanet(ctx context.Context, paranetUAL string) (paranet.SyncResult, error)
}

type Config struct {
	// SyncParanets lists the paranet UALs this node replicates. Only these may be named in
	// a federated SERVICE clause.
	SyncParanets []string

	ParanetSyncPeriod        time.Duration
	CommandsCleanerPeriod    time.Duration
	CommandsRetention        time.Duration
	OperationIDCleanerPeriod time.Duration
	OperationIDRetention     time.Duration
	PendingStorageRetention  time.Duration
	CleanerBatchSize         int
	ReadCachedPublishRetries int
	ReadCachedPublishDelay   time.Duration
	NetworkRetries           int
	MinimumReplications      int
	WriteUnifiedGraph        bool
}

func (c Config) withDefaults() Config {
	if c.ParanetSyncPeriod <= 0 {
		c.ParanetSyncPeriod = time.Minute
	}
	if c.CommandsCleanerPeriod <= 0 {
		c.CommandsCleanerPeriod = time.Hour
	}
	if c.CommandsRetention <= 0 {
		c.CommandsRetention = 24 * time.Hour
	}
	if c.OperationIDCleanerPeriod <= 0 {
		c.OperationIDCleanerPeriod = time.Hour
	}
	if c.OperationIDRetention <= 0 {
		c.OperationIDRetention = 24 * time.Hour
	}
	if c.PendingStorageRetention <= 0 {
		c.PendingStorageRetention = 7 * 24 * time.Hour
	}
	if c.CleanerBatchSize <= 0 {
		c.CleanerBatchSize = 1000
	}
	if c.ReadCachedPublishRetries <= 0 {
		c.ReadCachedPublishRetries = 10
	}
	if c.ReadCachedPublishDelay <= 0 {
		c.ReadCachedPublishDelay = 10 * time.Second
	}
	if c.NetworkRetries <= 0 {
		c.NetworkRetries = 3
	}
	if c.MinimumReplications <= 0 {
		c.MinimumReplications = 1
	}
	return c
}

// Deps are the collaborators shared by the handlers. Each handler keeps only the ones it uses.
type Deps struct {
	Log      *logger.Logger
	Tracker  Tracker
	Store    KnowledgeStore
	Query    QueryStore
	Chain    blockchain.Client
	Network  network.Client
	Pending  *pendingstorage.Storage
	Paranets ParanetSyncer
	Commands repos.CommandRepo
	Config   Config
}

// Handlers builds every protocol handler.
func Handlers(d Deps) []runtime.Handler {
	cfg := d.Config.withDefaults()
	log := d.Log.With("component", "Protocols")
	return []runtime.Handler{
		&getValidateAsset{tracker: d.Tracker, chain: d.Chain, paranets: d.Paranets},
		&localGet{log: log, tracker: d.Tracker, store: d.Store, chain: d.Chain},
		&networkGet{tracker: d.Tracker, net: d.Network, retries: cfg.NetworkRetries},
		&queryCmd{tracker: d.Tracker, query: d.Query, syncParanets: cfg.SyncParanets},
		&askFindShard{tracker: d.Tracker, net: d.Network},
		&networkAsk{tracker: d.Tracker, net: d.Network, retries: cfg.NetworkRetries},
		&publishFindShard{tracker: d.Tracker, net: d.Network},
		&networkPublish{tracker: d.Tracker, net: d.Network, pending: d.Pending, retries: cfg.NetworkRetries, minReplications: cfg.MinimumReplications},
		&readCachedPublishData{tracker: d.Tracker, pending: d.Pending, retries: cfg.ReadCachedPublishRetries, delay: cfg.ReadCachedPublishDelay},
		&validateAssertionMerkleRoot{tracker: d.Tracker},
		&storeAssertion{log: log, tracker: d.Tracker, store: d.Store, chain: d.Chain, pending: d.Pending, unified: cfg.WriteUnifiedGraph},
		&paranetSync{log: log, paranets: d.Paranets, syncParanets: cfg.SyncParanets, period: cfg.ParanetSyncPeriod},
		&commandsCleaner{log: log, repo: d.Commands, retention: cfg.CommandsRetention, batch: cfg.CleanerBatchSize, period: cfg.CommandsCleanerPeriod},
		&operationIDCleaner{log: log, tracker: d.Tracker, pending: d.Pending, retention: cfg.OperationIDRetention, pendingRetention: cfg.PendingStorageRetention, batch: cfg.CleanerBatchSize, period: cfg.OperationIDCleanerPeriod},
	}
}

// RegisterAll fills registry with every protocol handler. It fails on a duplicate name.
func RegisterAll(registry *runtime.Registry, d Deps) error {
	for _, h := range Handlers(d) {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// decode reads the command payload into the handler's input struct.
func decode[T any](rc *runtime.Context) (T, error) {
	var in T
	err := rc.Decode(&in)
	return in, err
}

// toMap converts a struct into command data through JSON.
func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// setStatus records a persisted status transition. A failure is logged and does not stop
// the step.
func setStatus(rc *runtime.Context, tracker Tracker, blockchain, s string) {
	if err := tracker.UpdateOperationIDStatus(rc.DB, rc.OperationID, blockchain, s); err != nil {
		rc.Log.Warn("Failed to update operation status", "status", s, "error", err)
	}
}
