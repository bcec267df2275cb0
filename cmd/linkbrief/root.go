package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valentinpelus/linkbrief/internal/config"
	"github.com/valentinpelus/linkbrief/internal/logging"
)

// commandContext carries the state shared by every subcommand once the
// persistent pre-run has loaded it.
type commandContext struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func (c *commandContext) load() error {
	if c.configPath != "" {
		if err := os.Setenv("LINKBRIEF_CONFIG", c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	serve := newServeCommand(ctx)
	rootCmd := &cobra.Command{
		Use:           "linkbrief",
		Short:         "Summarize links posted to a Telegram channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.logger != nil {
				_ = ctx.logger.Sync()
			}
		},
		RunE: serve.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "YAML configuration file (overrides LINKBRIEF_CONFIG)")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newScrapeCommand(ctx))
	rootCmd.AddCommand(newSummarizeCommand(ctx))

	return rootCmd
}
