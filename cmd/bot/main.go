package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bimaindrawans/binance-algo/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "bot",
		Short:        "ATR breakout trading engine for Binance USDⓈ-M futures",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start trading (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config, then print it with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg.Redacted())
			return nil
		},
	})

	return root
}

func runBot(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return run(ctx, cfg)
}
