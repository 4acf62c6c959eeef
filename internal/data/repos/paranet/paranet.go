package paranet

import (
	"time"

	"gorm.io/gorm"

	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type ParanetRepo interface {
	Create(dbc dbctx.Context, p *types.Paranet) error
	Exists(dbc dbctx.Context, paranetID, blockchainID string) (bool, error)
	Get(dbc dbctx.Context, paranetID, blockchainID string) (*types.Paranet, error)
	AddToKaCount(dbc dbctx.Context, paranetID, blockchainID string, delta int64) error
}

type paranetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParanetRepo(db *gorm.DB, baseLog *logger.Logger) ParanetRepo {
	return &paranetRepo{
		db:  db,
		log: baseLog.With("repo", "ParanetRepo"),
	}
}

func (r *paranetRepo) Create(dbc dbctx.Context, p *types.Paranet) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return transaction.WithContext(dbc.Ctx).Create(p).Error
}

func (r *paranetRepo) Exists(dbc dbctx.Context, paranetID, blockchainID string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Paranet{}).
		Where("paranet_id = ? AND blockchain_id = ?", paranetID, blockchainID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *paranetRepo) Get(dbc dbctx.Context, paranetID, blockchainID string) (*types.Paranet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Paranet
	if err := transaction.WithContext(dbc.Ctx).
		Where("paranet_id = ? AND blockchain_id = ?", paranetID, blockchainID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *paranetRepo) AddToKaCount(dbc dbctx.Context, paranetID, blockchainID string, delta int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Paranet{}).
		Where("paranet_id = ? AND blockchain_id = ?", paranetID, blockchainID).
		Updates(map[string]interface{}{
			"ka_count":   gorm.Expr("ka_count + ?", delta),
			"updated_at": time.Now().UTC(),
		}).Error
}
