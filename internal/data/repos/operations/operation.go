package operations

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type OperationRepo interface {
	Create(dbc dbctx.Context, op *types.Operation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error)
	UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	AppendEvent(dbc dbctx.Context, ev *types.OperationStatusEvent) error
	ListEvents(dbc dbctx.Context, operationID uuid.UUID) ([]*types.OperationStatusEvent, error)
	RemoveTerminal(dbc dbctx.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)
}

type operationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOperationRepo(db *gorm.DB, baseLog *logger.Logger) OperationRepo {
	return &operationRepo{
		db:  db,
		log: baseLog.With("repo", "OperationRepo"),
	}
}

func (r *operationRepo) Create(dbc dbctx.Context, op *types.Operation) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	return transaction.WithContext(dbc.Ctx).Create(op).Error
}

func (r *operationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Operation
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// UpdateUnlessTerminal applies updates only while the operation is not terminal.
// The terminal check and the write are one statement, so the first terminal write wins.
func (r *operationRepo) UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Operation{}).
		Where("id = ? AND terminal = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *operationRepo) AppendEvent(dbc dbctx.Context, ev *types.OperationStatusEvent) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Create(ev).Error
}

func (r *operationRepo) ListEvents(dbc dbctx.Context, operationID uuid.UUID) ([]*types.OperationStatusEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.OperationStatusEvent
	if err := transaction.WithContext(dbc.Ctx).
		Where("operation_id = ?", operationID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveTerminal deletes finished operations (and their timelines) completed before olderThan.
func (r *operationRepo) RemoveTerminal(dbc dbctx.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 1000
	}
	var ids []uuid.UUID
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.Operation{}).
			Where("terminal = ? AND completed_at < ?", true, olderThan.UTC()).
			Order("completed_at ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := txx.Where("operation_id IN ?", ids).Delete(&types.OperationStatusEvent{}).Error; err != nil {
			return err
		}
		return txx.Where("id IN ?", ids).Delete(&types.Operation{}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
