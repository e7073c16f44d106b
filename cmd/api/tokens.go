package main

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban/api/internal/store"
)

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain stored auth tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired refresh sessions and revoked access tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return withDatabase(cmd.Context(), cfg, func(ctx context.Context, db *sql.DB) error {
				removed, err := store.NewPostgresStore(db).PruneExpiredTokens(ctx)
				if err != nil {
					return err
				}
				log.WithField("removed", removed).Info("expired tokens pruned")
				return nil
			})
		},
	})
	return cmd
}
