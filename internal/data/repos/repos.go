package repos

import (
	"github.com/BogBogdan/ot-node/internal/data/repos/commands"
	"github.com/BogBogdan/ot-node/internal/data/repos/operations"
	"github.com/BogBogdan/ot-node/internal/data/repos/paranet"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"gorm.io/gorm"
)

type CommandRepo = commands.CommandRepo
type OperationRepo = operations.OperationRepo
type ParanetRepo = paranet.ParanetRepo
type ParanetKCRepo = paranet.ParanetKCRepo

func NewCommandRepo(db *gorm.DB, baseLog *logger.Logger) CommandRepo {
	return commands.NewCommandRepo(db, baseLog)
}
func NewOperationRepo(db *gorm.DB, baseLog *logger.Logger) OperationRepo {
	return operations.NewOperationRepo(db, baseLog)
}
func NewParanetRepo(db *gorm.DB, baseLog *logger.Logger) ParanetRepo {
	return paranet.NewParanetRepo(db, baseLog)
}
func NewParanetKCRepo(db *gorm.DB, baseLog *logger.Logger) ParanetKCRepo {
	return paranet.NewParanetKCRepo(db, baseLog)
}

// Set groups every repo the node uses.
type Set struct {
	Commands   CommandRepo
	Operations OperationRepo
	Paranets   ParanetRepo
	ParanetKCs ParanetKCRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Commands:   NewCommandRepo(db, baseLog),
		Operations: NewOperationRepo(db, baseLog),
		Paranets:   NewParanetRepo(db, baseLog),
		ParanetKCs: NewParanetKCRepo(db, baseLog),
	}
}
