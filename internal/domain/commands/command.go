package commands

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusStarted   Status = "STARTED"
	StatusRepeating Status = "REPEATING"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Command is one persisted step of a sequence. Data must carry everything a handler needs
// to re-execute from scratch; the executor keeps no implicit state between attempts.
type Command struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;not null;index" json:"name"`
	OperationID   *uuid.UUID     `gorm:"type:uuid;column:operation_id;index" json:"operation_id,omitempty"`
	Data          datatypes.JSON `gorm:"column:data" json:"data"`
	Sequence      datatypes.JSON `gorm:"column:sequence" json:"sequence"`
	Delay         int64          `gorm:"column:delay;not null;default:0" json:"delay"`
	Retries       int            `gorm:"column:retries;not null;default:0" json:"retries"`
	Attempts      int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Transactional bool           `gorm:"column:transactional;not null;default:false" json:"transactional"`
	Period        *int64         `gorm:"column:period" json:"period,omitempty"`
	Deadline      *time.Time     `gorm:"column:deadline" json:"deadline,omitempty"`
	Status        string         `gorm:"column:status;not null;index:idx_commands_due,priority:1" json:"status"`
	Message       string         `gorm:"column:message;type:text" json:"message,omitempty"`
	ReadyAt       time.Time      `gorm:"column:ready_at;not null;index:idx_commands_due,priority:2" json:"ready_at"`
	StartedAt     *time.Time     `gorm:"column:started_at;index" json:"started_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Command) TableName() string { return "commands" }

// DataMap decodes Data; a missing or malformed payload yields an empty map.
func (c *Command) DataMap() map[string]any {
	out := map[string]any{}
	if c == nil || len(c.Data) == 0 {
		return out
	}
	if err := json.Unmarshal(c.Data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func (c *Command) SetData(data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.Data = datatypes.JSON(b)
	return nil
}

func (c *Command) SequenceNames() []string {
	out := []string{}
	if c == nil || len(c.Sequence) == 0 {
		return out
	}
	if err := json.Unmarshal(c.Sequence, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func (c *Command) SetSequence(names []string) {
	if names == nil {
		names = []string{}
	}
	b, _ := json.Marshal(names)
	c.Sequence = datatypes.JSON(b)
}

func (c *Command) DelayDuration() time.Duration {
	return time.Duration(c.Delay) * time.Millisecond
}

func (c *Command) PeriodDuration() time.Duration {
	if c == nil || c.Period == nil {
		return 0
	}
	return time.Duration(*c.Period) * time.Millisecond
}
