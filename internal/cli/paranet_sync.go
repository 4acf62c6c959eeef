package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/BogBogdan/ot-node/internal/app"
)

// ParanetSyncOptions holds flags for the paranet-sync command.
type ParanetSyncOptions struct {
	*RootOptions
	Paranet string
}

func NewParanetSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParanetSyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "paranet-sync",
		Short: "Run one sync pass for a paranet and print the result",
		Long: `Discovers the paranet's knowledge collections on chain, queues the new ones and
syncs one batch into the paranet repository.

Example:
  otnode paranet-sync --paranet did:dkg:otp:2043/0x5cac41237127f94c2d21dae0b14bfefa99880630/1/1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts.RootOptions)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), log, app.Options{ConfigPath: opts.ConfigPath, Version: opts.Version})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Services.Paranets.SyncParanet(cmd.Context(), opts.Paranet)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&opts.Paranet, "paranet", "", "paranet UAL (required)")
	_ = cmd.MarkFlagRequired("paranet")

	return cmd
}
