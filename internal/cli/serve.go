package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BogBogdan/ot-node/internal/app"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the command executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, app.Options{ConfigPath: opts.ConfigPath, Version: opts.Version})
	if err != nil {
		log.Error("Failed to initialize node", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
