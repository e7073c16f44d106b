package main

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban/api/internal/config"
	"kanban/api/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return withDatabase(cmd.Context(), cfg, func(ctx context.Context, db *sql.DB) error {
				applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
				if err != nil {
					return err
				}
				log.WithField("versions", applied).Infof("applied %d migrations", len(applied))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return withDatabase(cmd.Context(), cfg, func(ctx context.Context, db *sql.DB) error {
				version, err := store.RollbackMigration(ctx, db, cfg.MigrationsDir)
				if err != nil {
					return err
				}
				if version == "" {
					log.Info("no migrations to roll back")
					return nil
				}
				log.WithField("version", version).Info("migration rolled back")
				return nil
			})
		},
	})
	return cmd
}

func withDatabase(ctx context.Context, cfg config.Config, fn func(ctx context.Context, db *sql.DB) error) error {
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("%s storage has no database", cfg.Storage)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}
