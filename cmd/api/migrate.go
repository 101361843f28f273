package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"localeforge/api/internal/config"
	"localeforge/api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply pending migrations", func(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
			if err := store.ApplyMigrations(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
		migrateSubcommand("down", "Roll back every migration", func(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
			if err := store.RollbackMigrations(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
			return nil
		}),
		migrateSubcommand("status", "List pending migrations", func(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
			pending, err := store.PendingMigrations(ctx, db)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, version := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending: %s\n", version)
			}
			return nil
		}),
	)
	return cmd
}

func migrateSubcommand(use, short string, run func(context.Context, *cobra.Command, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2})
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()
			return run(ctx, cmd, db)
		},
	}
}
