package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valentinpelus/linkbrief/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(runCtx, ctx.cfg, ctx.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() {
				if err := application.Close(); err != nil {
					ctx.logger.Warn("Shutdown cleanup failed", zap.Error(err))
				}
			}()

			application.LogStartupInfo()

			if err := application.Run(runCtx); err != nil && err != context.Canceled {
				return err
			}
			ctx.logger.Info("Stopped")
			return nil
		},
	}
}
