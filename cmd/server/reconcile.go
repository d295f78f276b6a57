package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/revguard/reconciler/internal/domain"
	"github.com/revguard/reconciler/internal/engine"
	"github.com/revguard/reconciler/internal/ingestion"
	"github.com/revguard/reconciler/internal/normalize"
)

var (
	reconcileBilling   string
	reconcileContracts string
	reconcileUsage     string
	reconcileServices  string
	reconcileTimeout   time.Duration
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass over dataset files and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if reconcileTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, reconcileTimeout)
			defer cancel()
		}

		var in engine.Input
		for _, src := range []struct {
			path   string
			source domain.SourceType
			dst    *[]normalize.RawRow
		}{
			{reconcileBilling, domain.SourceBilling, &in.Billing},
			{reconcileContracts, domain.SourceContract, &in.Contract},
			{reconcileUsage, domain.SourceUsage, &in.Usage},
			{reconcileServices, domain.SourceService, &in.Service},
		} {
			if src.path == "" {
				continue
			}
			rows, err := loadRows(src.path, src.source)
			if err != nil {
				return fmt.Errorf("load %s: %w", src.path, err)
			}
			*src.dst = rows
		}

		report, err := engine.New(cfg).Run(ctx, in)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func loadRows(path string, source domain.SourceType) ([]normalize.RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	if filepath.Ext(path) == ".json" {
		return ingestion.ParseJSON(data, source, name)
	}
	return ingestion.ParseCSV(data, source, name)
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileBilling, "billing", "", "billing records file (csv or json)")
	reconcileCmd.Flags().StringVar(&reconcileContracts, "contracts", "", "contracts file (csv or json)")
	reconcileCmd.Flags().StringVar(&reconcileUsage, "usage", "", "usage logs file (csv or json)")
	reconcileCmd.Flags().StringVar(&reconcileServices, "services", "", "service provisioning file (csv or json)")
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 0, "run deadline; on expiry the report is partial and marked truncated")
	rootCmd.AddCommand(reconcileCmd)
}
