package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "revguard",
	Short: "Revenue leakage reconciliation engine",
	Long:  "Cross-references billing, contract, usage and provisioning records to find missing charges, wrong rates, usage mismatches and duplicate entries, scored by estimated financial impact.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
