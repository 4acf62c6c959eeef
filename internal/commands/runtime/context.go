package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	types "github.com/BogBogdan/ot-node/internal/domain"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// Data keys shared by every command.
const (
	KeyOperationID = "operationId"
	KeyBlockchain  = "blockchain"
	KeyRetry       = "retry"
	KeyPeriod      = "period"
)

/*
Context is the execution handle for one claimed command.
  - Ctx: cancellation for the run
  - DB: persistence boundary; Tx is set when the command is transactional
  - Command: the claimed row
  - Log: child logger carrying command_id, command_name and operation_id

Handlers read their inputs from Data/Decode and report through the returned Outcome.
*/
type Context struct {
	Ctx         context.Context
	DB          dbctx.Context
	Command     *types.Command
	OperationID uuid.UUID
	Log         *logger.Logger
	data        map[string]any
}

func NewContext(ctx context.Context, dbc dbctx.Context, cmd *types.Command, baseLog *logger.Logger) *Context {
	c := &Context{
		Ctx:     ctx,
		DB:      dbc,
		Command: cmd,
		data:    cmd.DataMap(),
	}
	if cmd.OperationID != nil {
		c.OperationID = *cmd.OperationID
	} else if id, err := uuid.Parse(c.String(KeyOperationID)); err == nil {
		c.OperationID = id
	}
	c.Log = baseLog.With("command_id", cmd.ID, "command_name", cmd.Name, "operation_id", c.OperationID)
	return c
}

// Data returns a copy of the command payload.
func (c *Context) Data() map[string]any {
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Decode converts the payload into out through JSON.
func (c *Context) Decode(out any) error {
	raw, err := json.Marshal(c.data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s data: %w", c.Command.Name, err)
	}
	return nil
}

func (c *Context) String(key string) string {
	switch v := c.data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (c *Context) Int(key string) (int64, bool) {
	switch v := c.data[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func (c *Context) Bool(key string) bool {
	switch v := c.data[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (c *Context) Blockchain() string { return c.String(KeyBlockchain) }

// Attempt is the 1-based number of the current execution.
func (c *Context) Attempt() int { return c.Command.Attempts }

// MergeData overlays patch on base. Nil values are dropped and the retry and period
// bookkeeping keys never carry over to another command.
func MergeData(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	delete(out, KeyRetry)
	delete(out, KeyPeriod)
	return out
}
