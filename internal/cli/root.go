package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BogBogdan/ot-node/internal/pkg/envutil"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogMode    string
	Version    string
}

// NewRootCommand creates the otnode command. Without a subcommand it serves.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "otnode",
		Short:         "DKG node core",
		Long:          "Runs the knowledge graph node: operation API, command executor and paranet sync.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config (defaults to $OTNODE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogMode, "log-mode", "", "logger mode: development|production (defaults to $LOG_MODE)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewParanetSyncCommand(opts))

	return cmd
}

func newLogger(opts *RootOptions) (*logger.Logger, error) {
	mode := opts.LogMode
	if mode == "" {
		mode = envutil.String("LOG_MODE", "development", nil)
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
