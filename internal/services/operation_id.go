package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appdb "github.com/BogBogdan/ot-node/internal/data/db"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	types "github.com/BogBogdan/ot-node/internal/domain"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
	"github.com/BogBogdan/ot-node/internal/realtime/bus"
)

// OperationIDService owns operation records: their status timeline, cached result and
// terminal state. Nothing else writes operation rows.
type OperationIDService interface {
	GenerateOperationID(dbc dbctx.Context, opType types.OperationType, initialStatus string, externalID *uuid.UUID) (uuid.UUID, error)
	UpdateOperationIDStatus(dbc dbctx.Context, id uuid.UUID, blockchain, status string) error
	EmitChangeEvent(dbc dbctx.Context, status string, id uuid.UUID, blockchain string)
	MarkOperationAsCompleted(dbc dbctx.Context, id uuid.UUID, blockchain string, result any, statusSequence []string) (bool, error)
	MarkOperationAsFailed(dbc dbctx.Context, id uuid.UUID, blockchain, message, errorKind string) (bool, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error)
	GetCachedResult(id uuid.UUID) (json.RawMessage, bool, error)
	Timeline(dbc dbctx.Context, id uuid.UUID) ([]*types.OperationStatusEvent, error)
	RemoveExpired(dbc dbctx.Context, olderThan time.Time, limit int) (int, error)
}

type operationIDService struct {
	db    *gorm.DB
	log   *logger.Logger
	repo  repos.OperationRepo
	cache *OperationResultCache
	bus   bus.Bus
}

func NewOperationIDService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.OperationRepo,
	cache *OperationResultCache,
	events bus.Bus,
) OperationIDService {
	if events == nil {
		events = bus.NewMemoryBus()
	}
	return &operationIDService{
		db:    db,
		log:   baseLog.With("service", "OperationIDService"),
		repo:  repo,
		cache: cache,
		bus:   events,
	}
}

func (s *operationIDService) GenerateOperationID(dbc dbctx.Context, opType types.OperationType, initialStatus string, externalID *uuid.UUID) (uuid.UUID, error) {
	if strings.TrimSpace(string(opType)) == "" {
		return uuid.Nil, apperr.Validation("INVALID_OPERATION", "missing operation type")
	}
	if !opstatus.ValidStatus(opType, initialStatus) || opstatus.IsTerminalStatus(initialStatus) {
		return uuid.Nil, apperr.Validation("INVALID_OPERATION_STATUS", "%s is not an initial status for %s operations", initialStatus, opType)
	}
	id := uuid.New()
	if externalID != nil && *externalID != uuid.Nil {
		id = *externalID
	}
	op := &types.Operation{
		ID:     id,
		Type:   string(opType),
		Status: initialStatus,
	}
	err := dbc.DB(s.db).Transaction(func(txx *gorm.DB) error {
		inner := dbc.WithTx(txx)
		if err := s.repo.Create(inner, op); err != nil {
			return err
		}
		return s.repo.AppendEvent(inner, &types.OperationStatusEvent{
			OperationID: id,
			Status:      initialStatus,
		})
	})
	if err != nil {
		if appdb.IsUniqueViolation(err) {
			return uuid.Nil, apperr.Validation("OPERATION_EXISTS", "operation %s already exists", id)
		}
		return uuid.Nil, fmt.Errorf("create operation: %w", err)
	}
	s.log.Debug("operation created", "operation_id", id, "type", opType, "status", initialStatus)
	return id, nil
}

// UpdateOperationIDStatus appends status to the timeline. Writes to a terminal operation
// and transitions to an earlier stage are dropped.
func (s *operationIDService) UpdateOperationIDStatus(dbc dbctx.Context, id uuid.UUID, blockchain, status string) error {
	if opstatus.IsTerminalStatus(status) {
		return apperr.Validation("INVALID_OPERATION_STATUS", "%s must be set through completion or failure", status)
	}
	applied := false
	err := dbc.DB(s.db).Transaction(func(txx *gorm.DB) error {
		inner := dbc.WithTx(txx)
		op, err := s.repo.GetByID(inner, id)
		if err != nil {
			return err
		}
		if op == nil {
			return fmt.Errorf("operation %s: %w", id, apperr.ErrNotFound)
		}
		if op.Terminal {
			return nil
		}
		t := types.OperationType(op.Type)
		if !opstatus.ValidStatus(t, status) {
			return apperr.Validation("INVALID_OPERATION_STATUS", "%s is not a %s status", status, op.Type)
		}
		if opstatus.StatusRank(t, status) < opstatus.StatusRank(t, op.Status) {
			s.log.Debug("ignoring backward status transition", "operation_id", id, "from", op.Status, "to", status)
			return nil
		}
		updates := map[string]interface{}{"status": status}
		if blockchain != "" {
			updates["blockchain"] = blockchain
		}
		ok, err := s.repo.UpdateUnlessTerminal(inner, id, updates)
		if err != nil || !ok {
			return err
		}
		applied = true
		return s.repo.AppendEvent(inner, &types.OperationStatusEvent{
			OperationID: id,
			Blockchain:  blockchain,
			Status:      status,
		})
	})
	if err != nil {
		return err
	}
	if applied {
		s.EmitChangeEvent(dbc, status, id, blockchain)
	}
	return nil
}

// EmitChangeEvent notifies live listeners only. Publish failures are logged.
func (s *operationIDService) EmitChangeEvent(dbc dbctx.Context, status string, id uuid.UUID, blockchain string) {
	ev := realtime.OperationEvent{
		OperationID: id.String(),
		Blockchain:  blockchain,
		Status:      status,
		Timestamp:   time.Now().UTC(),
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish operation event", "operation_id", id, "status", status, "error", err)
	}
}

// MarkOperationAsCompleted caches result and walks statusSequence. Only the first
// terminal write takes effect; later calls return false and change nothing.
func (s *operationIDService) MarkOperationAsCompleted(dbc dbctx.Context, id uuid.UUID, blockchain string, result any, statusSequence []string) (bool, error) {
	sequence := completionSequence(statusSequence)
	var raw json.RawMessage
	if result != nil && s.cache != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("cache operation result: %w", err)
		}
		raw = b
	}
	var opType string
	claimed := false
	err := dbc.DB(s.db).Transaction(func(txx *gorm.DB) error {
		inner := dbc.WithTx(txx)
		op, err := s.repo.GetByID(inner, id)
		if err != nil {
			return err
		}
		if op == nil {
			return fmt.Errorf("operation %s: %w", id, apperr.ErrNotFound)
		}
		if op.Terminal {
			return nil
		}
		opType = op.Type
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       opstatus.StatusCompleted,
			"terminal":     true,
			"completed_at": now,
		}
		if blockchain != "" {
			updates["blockchain"] = blockchain
		}
		ok, err := s.repo.UpdateUnlessTerminal(inner, id, updates)
		if err != nil || !ok {
			return err
		}
		for _, status := range sequence {
			if err := s.repo.AppendEvent(inner, &types.OperationStatusEvent{
				OperationID: id,
				Blockchain:  blockchain,
				Status:      status,
			}); err != nil {
				return err
			}
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !claimed {
		s.log.Debug("operation already terminal, completion ignored", "operation_id", id)
		return false, nil
	}
	// The row may still sit in the caller's transaction; cache and announce only once it lands.
	dbc.AfterCommit(func() {
		if raw != nil {
			if err := s.cache.PutRaw(id, raw); err != nil {
				s.log.Warn("failed to persist operation result file, kept in memory", "operation_id", id, "error", err)
			}
		}
		for _, status := range sequence {
			s.EmitChangeEvent(dbc, status, id, blockchain)
		}
	})
	if metrics := observability.Current(); metrics != nil {
		metrics.OperationTerminal(opType, opstatus.StatusCompleted)
	}
	return true, nil
}

// MarkOperationAsFailed records the failure. It is a no-op once the operation is terminal.
func (s *operationIDService) MarkOperationAsFailed(dbc dbctx.Context, id uuid.UUID, blockchain, message, errorKind string) (bool, error) {
	var opType string
	claimed := false
	err := dbc.DB(s.db).Transaction(func(txx *gorm.DB) error {
		inner := dbc.WithTx(txx)
		op, err := s.repo.GetByID(inner, id)
		if err != nil {
			return err
		}
		if op == nil {
			return fmt.Errorf("operation %s: %w", id, apperr.ErrNotFound)
		}
		if op.Terminal {
			return nil
		}
		opType = op.Type
		updates := map[string]interface{}{
			"status":        opstatus.StatusFailed,
			"terminal":      true,
			"error_type":    errorKind,
			"error_message": message,
			"completed_at":  time.Now().UTC(),
		}
		if blockchain != "" {
			updates["blockchain"] = blockchain
		}
		ok, err := s.repo.UpdateUnlessTerminal(inner, id, updates)
		if err != nil || !ok {
			return err
		}
		claimed = true
		return s.repo.AppendEvent(inner, &types.OperationStatusEvent{
			OperationID: id,
			Blockchain:  blockchain,
			Status:      opstatus.StatusFailed,
		})
	})
	if err != nil || !claimed {
		return false, err
	}
	s.log.Warn("operation failed", "operation_id", id, "error_type", errorKind, "error", message)
	dbc.AfterCommit(func() { s.EmitChangeEvent(dbc, opstatus.StatusFailed, id, blockchain) })
	if metrics := observability.Current(); metrics != nil {
		metrics.OperationTerminal(opType, opstatus.StatusFailed)
	}
	return true, nil
}

func (s *operationIDService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error) {
	return s.repo.GetByID(dbc, id)
}

func (s *operationIDService) GetCachedResult(id uuid.UUID) (json.RawMessage, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	return s.cache.Get(id)
}

func (s *operationIDService) Timeline(dbc dbctx.Context, id uuid.UUID) ([]*types.OperationStatusEvent, error) {
	return s.repo.ListEvents(dbc, id)
}

// RemoveExpired deletes terminal operations finished before olderThan together with
// their cached results.
func (s *operationIDService) RemoveExpired(dbc dbctx.Context, olderThan time.Time, limit int) (int, error) {
	ids, err := s.repo.RemoveTerminal(dbc, olderThan, limit)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		for _, id := range ids {
			if err := s.cache.Remove(id); err != nil {
				s.log.Warn("failed to remove cached result", "operation_id", id, "error", err)
			}
		}
		s.cache.ExpireMemory(olderThan)
	}
	return len(ids), nil
}

// completionSequence drops terminal statuses from the caller's sequence and ends it
// with COMPLETED.
func completionSequence(in []string) []string {
	out := make([]string, 0, len(in)+1)
	for _, s := range in {
		if s == "" || opstatus.IsTerminalStatus(s) {
			continue
		}
		out = append(out, s)
	}
	return append(out, opstatus.StatusCompleted)
}
