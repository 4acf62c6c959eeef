package operations

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeGet                 Type = "get"
	TypeQuery               Type = "query"
	TypeAsk                 Type = "ask"
	TypePublish             Type = "publish"
	TypePublishFinalization Type = "publishFinalization"
)

// Operation is the durable handle for one logical request. Status moves forward until it
// reaches COMPLETED or FAILED; Terminal is set in the same write and never cleared.
type Operation struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"operation_id"`
	Type         string     `gorm:"column:type;not null;index" json:"type"`
	Blockchain   string     `gorm:"column:blockchain;index" json:"blockchain,omitempty"`
	Status       string     `gorm:"column:status;not null;index" json:"status"`
	Terminal     bool       `gorm:"column:terminal;not null;default:false;index" json:"terminal"`
	ErrorType    string     `gorm:"column:error_type" json:"error_type,omitempty"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;index" json:"updated_at"`
}

func (Operation) TableName() string { return "operation_ids" }

// OperationStatusEvent is the append-only status timeline of an operation.
type OperationStatusEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OperationID uuid.UUID `gorm:"type:uuid;not null;index" json:"operation_id"`
	Blockchain  string    `gorm:"column:blockchain" json:"blockchain,omitempty"`
	Status      string    `gorm:"column:status;not null;index" json:"status"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

func (OperationStatusEvent) TableName() string { return "operation_id_status_events" }
