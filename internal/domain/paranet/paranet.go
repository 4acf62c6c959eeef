package paranet

import "time"

type AccessPolicy string

const (
	AccessOpen    AccessPolicy = "OPEN"
	AccessCurated AccessPolicy = "CURATED"
)

// AccessPolicyFromUint maps the on-chain enum value.
func AccessPolicyFromUint(v uint8) AccessPolicy {
	if v == 1 {
		return AccessCurated
	}
	return AccessOpen
}

type Paranet struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ParanetID    string    `gorm:"column:paranet_id;not null;uniqueIndex:idx_paranet_chain,priority:1" json:"paranet_id"`
	BlockchainID string    `gorm:"column:blockchain_id;not null;uniqueIndex:idx_paranet_chain,priority:2" json:"blockchain_id"`
	UAL          string    `gorm:"column:ual;not null;index" json:"ual"`
	Name         string    `gorm:"column:name" json:"name,omitempty"`
	Description  string    `gorm:"column:description;type:text" json:"description,omitempty"`
	KaCount      int64     `gorm:"column:ka_count;not null;default:0" json:"ka_count"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Paranet) TableName() string { return "paranet" }

// ParanetKC tracks sync of one knowledge collection into one paranet.
type ParanetKC struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BlockchainID string    `gorm:"column:blockchain_id;not null" json:"blockchain_id"`
	UAL          string    `gorm:"column:ual;not null;uniqueIndex:idx_paranet_kc_ual_paranet,priority:1" json:"ual"`
	ParanetUAL   string    `gorm:"column:paranet_ual;not null;uniqueIndex:idx_paranet_kc_ual_paranet,priority:2;index:idx_paranet_kc_sync,priority:1" json:"paranet_ual"`
	IsSynced     bool      `gorm:"column:is_synced;not null;default:false;index:idx_paranet_kc_sync,priority:2" json:"is_synced"`
	Retries      int       `gorm:"column:retries;not null;default:0;index:idx_paranet_kc_sync,priority:3" json:"retries"`
	ErrorMessage *string   `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;index:idx_paranet_kc_sync,priority:4" json:"updated_at"`
}

func (ParanetKC) TableName() string { return "paranet_kc" }

// SyncCounts is the progress summary for one paranet.
type SyncCounts struct {
	Total     int64 `json:"total"`
	Synced    int64 `json:"synced"`
	Pending   int64 `json:"pending"`
	Exhausted int64 `json:"exhausted"`
}
