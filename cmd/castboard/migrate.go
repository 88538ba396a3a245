package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"castboard/internal/storage/migrations"
	pgstore "castboard/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded Postgres and ClickHouse migrations",
	Long: `Apply pending schema migrations to every configured database.
POSTGRES_DSN migrates the ledger_participants table; CLICKHOUSE_DSN migrates
the leaderboard snapshot tables. Already-applied files are skipped.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfg.PostgresDSN == "" && cfg.ClickhouseDSN == "" {
		return errors.New("nothing to migrate: set POSTGRES_DSN and/or CLICKHOUSE_DSN")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("postgres migrations complete")
	}

	if cfg.ClickhouseDSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("close clickhouse")
		}
		logger.Info().Strs("applied", applied).Msg("clickhouse migrations complete")
	}
	return nil
}
