package paranet

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// ParanetKCRepo persists knowledge-collection sync records. Every count shares the
// selection predicate of GetSyncBatch so progress reports match the remaining work.
type ParanetKCRepo interface {
	Enqueue(dbc dbctx.Context, blockchainID, paranetUAL string, uals []string) (int64, error)
	GetSyncBatch(dbc dbctx.Context, paranetUAL string, retriesMax int, retryDelay time.Duration, limit int) ([]*types.ParanetKC, error)
	MarkAsSynced(dbc dbctx.Context, ual, paranetUAL string) (bool, error)
	IncrementRetries(dbc dbctx.Context, ual, paranetUAL, errorMessage string) error
	Get(dbc dbctx.Context, ual, paranetUAL string) (*types.ParanetKC, error)
	GetCount(dbc dbctx.Context, paranetUAL string) (int64, error)
	GetCountSynced(dbc dbctx.Context, paranetUAL string) (int64, error)
	GetCountUnsynced(dbc dbctx.Context, paranetUAL string, retriesMax int) (int64, error)
	GetCountExhausted(dbc dbctx.Context, paranetUAL string, retriesMax int) (int64, error)
	Counts(dbc dbctx.Context, paranetUAL string, retriesMax int) (types.ParanetSyncCounts, error)
}

type paranetKCRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewParanetKCRepo(db *gorm.DB, baseLog *logger.Logger) ParanetKCRepo {
	return &paranetKCRepo{
		db:  db,
		log: baseLog.With("repo", "ParanetKCRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue inserts a record per UAL, ignoring pairs that already exist.
func (r *paranetKCRepo) Enqueue(dbc dbctx.Context, blockchainID, paranetUAL string, uals []string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(uals) == 0 {
		return 0, nil
	}
	now := r.now()
	rows := make([]*types.ParanetKC, 0, len(uals))
	for _, u := range uals {
		rows = append(rows, &types.ParanetKC{
			BlockchainID: blockchainID,
			UAL:          u,
			ParanetUAL:   paranetUAL,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ual"}, {Name: "paranet_ual"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *paranetKCRepo) GetSyncBatch(dbc dbctx.Context, paranetUAL string, retriesMax int, retryDelay time.Duration, limit int) ([]*types.ParanetKC, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ParanetKC
	if limit <= 0 {
		return out, nil
	}
	cutoff := r.now().Add(-retryDelay)
	if err := transaction.WithContext(dbc.Ctx).
		Where("paranet_ual = ? AND is_synced = ? AND retries < ?", paranetUAL, false, retriesMax).
		Where("updated_at <= ? OR retries = 0", cutoff).
		Order("retries ASC").
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAsSynced reports whether this call flipped the record. A record that was already
// synced is left alone and yields false.
func (r *paranetKCRepo) MarkAsSynced(dbc dbctx.Context, ual, paranetUAL string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ParanetKC{}).
		Where("ual = ? AND paranet_ual = ? AND is_synced = ?", ual, paranetUAL, false).
		Updates(map[string]interface{}{
			"is_synced":  true,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementRetries bumps the counter and replaces the stored error with the latest one.
func (r *paranetKCRepo) IncrementRetries(dbc dbctx.Context, ual, paranetUAL, errorMessage string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ParanetKC{}).
		Where("ual = ? AND paranet_ual = ?", ual, paranetUAL).
		Updates(map[string]interface{}{
			"retries":       gorm.Expr("retries + 1"),
			"error_message": errorMessage,
			"updated_at":    r.now(),
		}).Error
}

func (r *paranetKCRepo) Get(dbc dbctx.Context, ual, paranetUAL string) (*types.ParanetKC, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ParanetKC
	if err := transaction.WithContext(dbc.Ctx).
		Where("ual = ? AND paranet_ual = ?", ual, paranetUAL).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *paranetKCRepo) GetCount(dbc dbctx.Context, paranetUAL string) (int64, error) {
	return r.count(dbc, "paranet_ual = ?", paranetUAL)
}

func (r *paranetKCRepo) GetCountSynced(dbc dbctx.Context, paranetUAL string) (int64, error) {
	return r.count(dbc, "paranet_ual = ? AND is_synced = ?", paranetUAL, true)
}

// GetCountUnsynced counts records still eligible for selection at some point.
func (r *paranetKCRepo) GetCountUnsynced(dbc dbctx.Context, paranetUAL string, retriesMax int) (int64, error) {
	return r.count(dbc, "paranet_ual = ? AND is_synced = ? AND retries < ?", paranetUAL, false, retriesMax)
}

func (r *paranetKCRepo) GetCountExhausted(dbc dbctx.Context, paranetUAL string, retriesMax int) (int64, error) {
	return r.count(dbc, "paranet_ual = ? AND is_synced = ? AND retries >= ?", paranetUAL, false, retriesMax)
}

func (r *paranetKCRepo) Counts(dbc dbctx.Context, paranetUAL string, retriesMax int) (types.ParanetSyncCounts, error) {
	var out types.ParanetSyncCounts
	var err error
	if out.Total, err = r.GetCount(dbc, paranetUAL); err != nil {
		return out, err
	}
	if out.Synced, err = r.GetCountSynced(dbc, paranetUAL); err != nil {
		return out, err
	}
	if out.Pending, err = r.GetCountUnsynced(dbc, paranetUAL, retriesMax); err != nil {
		return out, err
	}
	if out.Exhausted, err = r.GetCountExhausted(dbc, paranetUAL, retriesMax); err != nil {
		return out, err
	}
	return out, nil
}

func (r *paranetKCRepo) count(dbc dbctx.Context, query string, args ...interface{}) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.ParanetKC{}).
		Where(query, args...).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
