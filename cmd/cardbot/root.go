package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/cardbot/app/bot"
	"github.com/m3rciful/cardbot/app/config"
	"github.com/m3rciful/cardbot/core/buildinfo"
	corecmd "github.com/m3rciful/cardbot/core/cmd"
	"github.com/m3rciful/cardbot/core/database"
	"github.com/m3rciful/cardbot/core/logger"
	"github.com/m3rciful/cardbot/migrations"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardbot",
		Short:         "Telegram bot for managing personal card listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file path (falls back to CONFIG_PATH, then config.yaml).")

	root.AddCommand(newRunCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func runnerOptions(cmd *cobra.Command) corecmd.Options {
	path, _ := cmd.Flags().GetString("config")
	return corecmd.Options{
		ConfigPath:        path,
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (migrations are applied first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := runnerOptions(cmd)
			opts.LoadConfig = func(path string) (corecmd.ConfigCarrier, error) {
				return config.Load(path)
			}
			opts.Bootstrap = func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
				return bot.New(ctx, cfg.(*config.Config))
			}
			return corecmd.Run(opts)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			path, err := runnerOptions(cmd).ResolveConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadForMigrate(path)
			if err != nil {
				return fmt.Errorf("load config %s: %w", path, err)
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() {
				if shutdownErr := logger.Shutdown(); err == nil {
					err = shutdownErr
				}
			}()
			return database.RunMigrations(cfg.Database, migrations.FS)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cardbot %s\n", buildinfo.String())
		},
	}
}
