package cli

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/eshields/caseplan/internal/shared/infrastructure/migrations"
	"github.com/eshields/caseplan/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if strings.HasPrefix(cfg.DatabaseURL, "sqlite:") ||
			strings.HasPrefix(cfg.DatabaseURL, "file:") ||
			strings.HasSuffix(cfg.DatabaseURL, ".db") {
			db, err := sql.Open("sqlite", strings.TrimPrefix(cfg.DatabaseURL, "sqlite:"))
			if err != nil {
				return fmt.Errorf("open sqlite database: %w", err)
			}
			defer db.Close()

			if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
				return err
			}
			logger.Info("sqlite migrations applied")
			return nil
		}

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		logger.Info("postgres migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
