package main

import (
	"fmt"
	"log/slog"

	"github.com/dandantas/assessment-orchestrator/internal/config"
	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.InitLogger(cfg)

			if !cfg.UsesMongo() {
				return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverMongo)
			}

			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Disconnect(ctx); err != nil {
					slog.Error("Failed to disconnect from MongoDB", "error", err)
				}
			}()

			if err := database.CreateIndexes(ctx, db); err != nil {
				return err
			}

			slog.Info("Indexes created", "database", cfg.MongoDatabase)
			return nil
		},
	}
}
