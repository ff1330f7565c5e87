package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints and sweep the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			s, err := opts.substrate(cmd)
			if err != nil {
				return err
			}

			serveErr := s.ListenAndServe(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(serveErr, s.Close(shutdownCtx))
		},
	}
}
