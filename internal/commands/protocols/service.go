package protocols

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/commands/executor"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const ErrKindInvalidDataset = "INVALID_DATASET"

// Operations is the operation service surface the entry points use.
type Operations interface {
	GenerateOperationID(dbc dbctx.Context, opType types.OperationType, initialStatus string, externalID *uuid.UUID) (uuid.UUID, error)
	UpdateOperationIDStatus(dbc dbctx.Context, id uuid.UUID, blockchain, status string) error
	MarkOperationAsFailed(dbc dbctx.Context, id uuid.UUID, blockchain, message, errorKind string) (bool, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error)
	GetCachedResult(id uuid.UUID) (json.RawMessage, bool, error)
}

type Scheduler interface {
	Schedule(dbc dbctx.Context, spec executor.Spec) (*types.Command, error)
}

// PublishRequest is a dataset handed to this node for replication.
type PublishRequest struct {
	Blockchain          string              `json:"blockchain"`
	DatasetRoot         string              `json:"datasetRoot"`
	Dataset             knowledge.Assertion `json:"dataset"`
	MinimumReplications int                 `json:"minimumNumberOfNodeReplications,omitempty"`
	RemotePeerID        string              `json:"remotePeerId,omitempty"`
}

// FinalizationEvent is a knowledge collection creation observed on chain.
type FinalizationEvent struct {
	Blockchain         string `json:"blockchain"`
	Contract           string `json:"contract"`
	CollectionID       uint64 `json:"collectionId"`
	MerkleRoot         string `json:"merkleRoot"`
	PublishOperationID string `json:"publishOperationId"`
	ByteSize           int64  `json:"byteSize,omitempty"`
}

// OperationResult is what a client polling an operation sees.
type OperationResult struct {
	Operation *types.Operation
	Data      json.RawMessage
}

// Service creates operations and schedules the first command of each protocol.
type Service struct {
	log     *logger.Logger
	ops     Operations
	sched   Scheduler
	chain   blockchain.Client
	pending *pendingstorage.Storage
	cmds    repos.CommandRepo
	cfg     Config
}

func NewService(baseLog *logger.Logger, ops Operations, sched Scheduler, chain blockchain.Client, pending *pendingstorage.Storage, cmds repos.CommandRepo, cfg Config) *Service {
	return &Service{
		log:     baseLog.With("service", "ProtocolService"),
		ops:     ops,
		sched:   sched,
		chain:   chain,
		pending: pending,
		cmds:    cmds,
		cfg:     cfg.withDefaults(),
	}
}

func (s *Service) StartGet(ctx context.Context, in GetInput) (uuid.UUID, error) {
	if _, err := in.visibility(); err != nil {
		return uuid.Nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.ops.GenerateOperationID(dbc, opstatus.TypeGet, opstatus.GetStart, nil)
	if err != nil {
		return uuid.Nil, err
	}
	s.status(dbc, id, in.Blockchain, opstatus.GetInitStart)
	if u, err := ual.Parse(in.UAL); err == nil && in.Blockchain == "" {
		in.Blockchain = u.Blockchain
	}
	return id, s.schedule(dbc, id, in.Blockchain, opstatus.GetInitEnd, opstatus.ErrGet, executor.Spec{
		Name:     GetValidateAssetCommand,
		Sequence: GetSequence,
		Data:     toMap(in),
	})
}

func (s *Service) StartQuery(ctx context.Context, in QueryInput) (uuid.UUID, error) {
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.ops.GenerateOperationID(dbc, opstatus.TypeQuery, opstatus.QueryInitStart, nil)
	if err != nil {
		return uuid.Nil, err
	}
	return id, s.schedule(dbc, id, "", opstatus.QueryInitEnd, opstatus.ErrLocalQuery, executor.Spec{
		Name: QueryCommand,
		Data: toMap(in),
	})
}

// StartAsk pins the dataset root the peers must confirm. When the chain cannot provide
// it the operation is failed and its id is still returned.
func (s *Service) StartAsk(ctx context.Context, in AskInput) (uuid.UUID, error) {
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.ops.GenerateOperationID(dbc, opstatus.TypeAsk, opstatus.AskStart, nil)
	if err != nil {
		return uuid.Nil, err
	}
	u, err := ual.Parse(in.UAL)
	if err == nil {
		in.Blockchain = u.Blockchain
		in.DatasetRoot, err = s.chain.KnowledgeCollectionMerkleRoot(ctx, u.Blockchain, u.Contract, u.CollectionID)
	}
	if err != nil {
		s.log.Warn("Ask input rejected", "operation_id", id, "error", err)
		s.fail(dbc, id, in.Blockchain, "Unable to check ask, Failed to process input data!", opstatus.ErrAsk)
		return id, nil
	}
	if in.MinimumReplications <= 0 {
		in.MinimumReplications = s.cfg.MinimumReplications
	}
	return id, s.schedule(dbc, id, in.Blockchain, "", opstatus.ErrAsk, executor.Spec{
		Name:     AskFindShardCommand,
		Sequence: AskSequence,
		Data:     toMap(in),
	})
}

// StartPublish checks the dataset against its root, parks it in pending storage and
// starts replication.
func (s *Service) StartPublish(ctx context.Context, req PublishRequest) (uuid.UUID, error) {
	if len(req.Dataset.Public) == 0 {
		return uuid.Nil, apperr.Validation(ErrKindInvalidDataset, "dataset has no public statements")
	}
	if root := graph.MerkleRoot(req.Dataset.Public); root != req.DatasetRoot {
		return uuid.Nil, apperr.Validation(ErrKindInvalidDataset, "dataset root %s does not match computed %s", req.DatasetRoot, root)
	}
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.ops.GenerateOperationID(dbc, opstatus.TypePublish, opstatus.PublishStart, nil)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.pending.Cache(id, pendingstorage.PublishCache{
		Assertion:    req.Dataset,
		MerkleRoot:   req.DatasetRoot,
		RemotePeerID: req.RemotePeerID,
		Blockchain:   req.Blockchain,
	}); err != nil {
		s.fail(dbc, id, req.Blockchain, err.Error(), opstatus.ErrPublish)
		return id, fmt.Errorf("cache publish data: %w", err)
	}
	min := req.MinimumReplications
	if min <= 0 {
		min = s.cfg.MinimumReplications
	}
	return id, s.schedule(dbc, id, req.Blockchain, "", opstatus.ErrPublish, executor.Spec{
		Name:     PublishFindShardCommand,
		Sequence: PublishSequence,
		Data: toMap(PublishInput{
			Blockchain:          req.Blockchain,
			DatasetRoot:         req.DatasetRoot,
			MinimumReplications: min,
		}),
	})
}

// StartFinalization stores a collection once its creation is final on chain.
func (s *Service) StartFinalization(ctx context.Context, ev FinalizationEvent) (uuid.UUID, error) {
	if _, err := uuid.Parse(ev.PublishOperationID); err != nil {
		return uuid.Nil, apperr.Validation(opstatus.ErrFinalization, "invalid publish operation id %q", ev.PublishOperationID)
	}
	dbc := dbctx.Context{Ctx: ctx}
	id, err := s.ops.GenerateOperationID(dbc, opstatus.TypePublishFinalization, opstatus.FinalizationStart, nil)
	if err != nil {
		return uuid.Nil, err
	}
	return id, s.schedule(dbc, id, ev.Blockchain, "", opstatus.ErrFinalization, executor.Spec{
		Name:     ReadCachedPublishDataCommand,
		Sequence: FinalizationSequence,
		Data: toMap(FinalizationInput{
			Blockchain:         ev.Blockchain,
			Contract:           ev.Contract,
			CollectionID:       ev.CollectionID,
			MerkleRoot:         ev.MerkleRoot,
			PublishOperationID: ev.PublishOperationID,
			ByteSize:           ev.ByteSize,
		}),
	})
}

// Result returns the operation and, once it completed, its cached result.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*OperationResult, error) {
	op, err := s.ops.Get(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("operation %s: %w", id, apperr.ErrNotFound)
	}
	out := &OperationResult{Operation: op}
	if op.Status != opstatus.StatusCompleted {
		return out, nil
	}
	data, ok, err := s.ops.GetCachedResult(id)
	if err != nil {
		return nil, err
	}
	if ok {
		out.Data = data
	}
	return out, nil
}

// ScheduleHousekeeping makes sure each periodic command exists exactly once. It is safe
// to call on every start.
func (s *Service) ScheduleHousekeeping(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}
	names := []string{CommandsCleanerCommand, OperationIDCleanerCommand}
	if len(s.cfg.SyncParanets) > 0 {
		names = append(names, ParanetSyncCommand)
	}
	for _, name := range names {
		existing, err := s.cmds.FindActiveByName(dbc, name)
		if err != nil {
			return fmt.Errorf("find %s: %w", name, err)
		}
		if existing != nil {
			continue
		}
		if _, err := s.sched.Schedule(dbc, executor.Spec{Name: name}); err != nil {
			return err
		}
		s.log.Info("Periodic command scheduled", "command_name", name)
	}
	return nil
}

func (s *Service) schedule(dbc dbctx.Context, id uuid.UUID, blockchainID, initEnd, errKind string, spec executor.Spec) error {
	spec.OperationID = &id
	if spec.Data == nil {
		spec.Data = map[string]any{}
	}
	if blockchainID != "" {
		spec.Data["blockchain"] = blockchainID
	}
	if _, err := s.sched.Schedule(dbc, spec); err != nil {
		s.fail(dbc, id, blockchainID, err.Error(), errKind)
		return err
	}
	if initEnd != "" {
		s.status(dbc, id, blockchainID, initEnd)
	}
	return nil
}

func (s *Service) status(dbc dbctx.Context, id uuid.UUID, blockchainID, status string) {
	if err := s.ops.UpdateOperationIDStatus(dbc, id, blockchainID, status); err != nil {
		s.log.Warn("Failed to update operation status", "operation_id", id, "status", status, "error", err)
	}
}

func (s *Service) fail(dbc dbctx.Context, id uuid.UUID, blockchainID, message, kind string) {
	if _, err := s.ops.MarkOperationAsFailed(dbc, id, blockchainID, message, kind); err != nil {
		s.log.Error("Failed to mark operation failed", "operation_id", id, "error", err)
	}
}
