package domain

import (
	"github.com/BogBogdan/ot-node/internal/domain/commands"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/domain/paranet"
)

type (
	Command              = commands.Command
	CommandStatus        = commands.Status
	Operation            = operations.Operation
	OperationType        = operations.Type
	OperationStatusEvent = operations.OperationStatusEvent
	Paranet              = paranet.Paranet
	ParanetKC            = paranet.ParanetKC
	ParanetSyncCounts    = paranet.SyncCounts
	AccessPolicy         = paranet.AccessPolicy
	Visibility           = knowledge.Visibility
	TokenRange           = knowledge.TokenRange
	Assertion            = knowledge.Assertion
	LegacyMode           = knowledge.LegacyMode
)

// Models returns every persisted model in migration order.
func Models() []any {
	return []any{
		&commands.Command{},
		&operations.Operation{},
		&operations.OperationStatusEvent{},
		&paranet.Paranet{},
		&paranet.ParanetKC{},
	}
}
