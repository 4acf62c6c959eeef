package commands

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appdb "github.com/BogBogdan/ot-node/internal/data/db"
	types "github.com/BogBogdan/ot-node/internal/domain"
	domaincmd "github.com/BogBogdan/ot-node/internal/domain/commands"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type CommandRepo interface {
	Create(dbc dbctx.Context, cmds []*types.Command) ([]*types.Command, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Command, error)
	ListByOperation(dbc dbctx.Context, operationID uuid.UUID) ([]*types.Command, error)
	FindActiveByName(dbc dbctx.Context, name string) (*types.Command, error)
	ClaimDue(dbc dbctx.Context, now time.Time, staleAfter time.Duration, limit int) ([]*types.Command, error)
	Replace(dbc dbctx.Context, currentID uuid.UUID, next *types.Command) error
	Reschedule(dbc dbctx.Context, id uuid.UUID, status domaincmd.Status, retries int, readyAt time.Time, data datatypes.JSON, message string) error
	Finalize(dbc dbctx.Context, id uuid.UUID, status domaincmd.Status, message string) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	RemoveFinalized(dbc dbctx.Context, olderThan time.Time, limit int) (int64, error)
}

type commandRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommandRepo(db *gorm.DB, baseLog *logger.Logger) CommandRepo {
	return &commandRepo{
		db:  db,
		log: baseLog.With("repo", "CommandRepo"),
	}
}

func (r *commandRepo) Create(dbc dbctx.Context, cmds []*types.Command) ([]*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(cmds) == 0 {
		return []*types.Command{}, nil
	}
	now := time.Now().UTC()
	for _, c := range cmds {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.Status == "" {
			c.Status = string(domaincmd.StatusPending)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		if c.ReadyAt.IsZero() {
			c.ReadyAt = now.Add(c.DelayDuration())
		}
		if len(c.Data) == 0 {
			c.Data = datatypes.JSON("{}")
		}
		if len(c.Sequence) == 0 {
			c.Sequence = datatypes.JSON("[]")
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}

func (r *commandRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Command
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

func (r *commandRepo) ListByOperation(dbc dbctx.Context, operationID uuid.UUID) ([]*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Command
	if operationID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("operation_id = ?", operationID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindActiveByName returns a command with the given name that is still scheduled or running.
func (r *commandRepo) FindActiveByName(dbc dbctx.Context, name string) (*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Command
	if err := transaction.WithContext(dbc.Ctx).
		Where("name = ? AND status IN ?", name, activeStatuses()).
		Order("created_at ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// ClaimDue moves up to limit due commands to STARTED and returns them.
// A STARTED command whose worker vanished for longer than staleAfter is claimed again.
func (r *commandRepo) ClaimDue(dbc dbctx.Context, now time.Time, staleAfter time.Duration, limit int) ([]*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	staleCutoff := now.Add(-staleAfter)
	var claimed []*types.Command
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		q := txx
		if appdb.IsPostgres(txx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var due []*types.Command
		qErr := q.Where(`
        (
          status IN ?
          AND ready_at <= ?
        )
        OR (
          status = ?
          AND started_at IS NOT NULL
          AND started_at < ?
        )
      `, []string{string(domaincmd.StatusPending), string(domaincmd.StatusRepeating)}, now,
			string(domaincmd.StatusStarted), staleCutoff).
			Order("ready_at ASC").
			Limit(limit).
			Find(&due).Error
		if qErr != nil {
			return qErr
		}
		for _, c := range due {
			res := txx.Model(&types.Command{}).
				Where("id = ? AND attempts = ?", c.ID, c.Attempts).
				Updates(map[string]interface{}{
					"status":     string(domaincmd.StatusStarted),
					"attempts":   gorm.Expr("attempts + 1"),
					"started_at": now,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			c.Status = string(domaincmd.StatusStarted)
			c.Attempts++
			started := now
			c.StartedAt = &started
			c.UpdatedAt = now
			claimed = append(claimed, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Replace deletes the current command and inserts its successor in one transaction.
func (r *commandRepo) Replace(dbc dbctx.Context, currentID uuid.UUID, next *types.Command) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("id = ?", currentID).Delete(&types.Command{}).Error; err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		_, err := r.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, []*types.Command{next})
		return err
	})
}

// Reschedule re-arms a command. A nil data keeps the stored payload.
func (r *commandRepo) Reschedule(dbc dbctx.Context, id uuid.UUID, status domaincmd.Status, retries int, readyAt time.Time, data datatypes.JSON, message string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"status":     string(status),
		"retries":    retries,
		"ready_at":   readyAt.UTC(),
		"started_at": nil,
		"message":    message,
		"updated_at": time.Now().UTC(),
	}
	if data != nil {
		updates["data"] = data
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Command{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *commandRepo) Finalize(dbc dbctx.Context, id uuid.UUID, status domaincmd.Status, message string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Command{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"message":    message,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *commandRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Command{}).Error
}

// RemoveFinalized deletes failed or expired commands last touched before olderThan.
func (r *commandRepo) RemoveFinalized(dbc dbctx.Context, olderThan time.Time, limit int) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 1000
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Command{}).
		Where("status IN ? AND updated_at < ?",
			[]string{string(domaincmd.StatusFailed), string(domaincmd.StatusExpired)}, olderThan.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.Command{})
	return res.RowsAffected, res.Error
}

func activeStatuses() []string {
	return []string{
		string(domaincmd.StatusPending),
		string(domaincmd.StatusRepeating),
		string(domaincmd.StatusStarted),
	}
}
