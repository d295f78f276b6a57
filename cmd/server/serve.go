package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/api"
	"github.com/revguard/reconciler/internal/engine"
	"github.com/revguard/reconciler/internal/ingestion"
	"github.com/revguard/reconciler/internal/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		zap.L().Info("initializing database", zap.String("path", cfg.Store.Path))
		db, err := repository.InitDB(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("init db: %w", err)
		}
		defer db.Close()

		// Stores.
		recordRepo := repository.NewRecordRepo(db)
		findingRepo := repository.NewFindingRepo(db)
		runRepo := repository.NewRunRepo(db)

		// Services.
		ingestionSvc := ingestion.NewService(recordRepo, cfg)
		runner := engine.NewRunner(engine.New(cfg), recordRepo, findingRepo, runRepo)

		router := api.NewRouter(recordRepo, findingRepo, runRepo, ingestionSvc, runner)

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zap.L().Info("listening", zap.String("addr", addr), zap.String("api_base", "/api/v1"))

		if err := http.ListenAndServe(addr, router); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
