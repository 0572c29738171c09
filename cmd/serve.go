package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/application"
	"github.com/Shugur-Network/dmsync/internal/logger"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot over HTTP and resync periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := application.New(ctx, cfg)
			if err != nil {
				return err
			}
			if err := node.Start(ctx); err != nil {
				node.Shutdown()
				return err
			}
			logger.Info("dmsync is running",
				zap.String("addr", cfg.Server.Addr),
				zap.String("relay_mode", cfg.Sync.RelayMode))

			<-ctx.Done()
			node.Shutdown()
			return nil
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	return cmd
}
