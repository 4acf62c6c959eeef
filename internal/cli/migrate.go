package cli

import (
	"github.com/spf13/cobra"

	"github.com/BogBogdan/ot-node/internal/app"
	"github.com/BogBogdan/ot-node/internal/config"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the operational database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts)
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg, err := config.Load(opts.ConfigPath, log)
			if err != nil {
				return err
			}
			pg, err := app.OpenDatabase(cfg, log)
			if err != nil {
				return err
			}
			log.Info("Database schema is up to date", "driver", cfg.Database.Driver)
			return pg.Close()
		},
	}
}
