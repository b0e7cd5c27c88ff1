package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"search-analytics-node/db/migrations"
)

// Migrate runs a goose command (up, down, status, version) against db.
// It returns the current schema version afterwards.
func Migrate(ctx context.Context, db *sqlx.DB, cmd string, logger *zap.SugaredLogger) (int64, error) {
	provider, err := goose.NewProvider(DialectOf(db), db.DB, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}

	logger.Infow("goose_run_start", "cmd", cmd)

	switch cmd {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return 0, fmt.Errorf("goose up: %w", err)
		}
		for _, r := range results {
			logger.Infow("goose_migration_applied", "version", r.Source.Version, "duration", r.Duration)
		}
	case "down":
		if _, err := provider.Down(ctx); err != nil {
			return 0, fmt.Errorf("goose down: %w", err)
		}
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return 0, fmt.Errorf("goose status: %w", err)
		}
		for _, s := range statuses {
			logger.Infow("goose_migration_status", "version", s.Source.Version, "state", s.State, "applied_at", s.AppliedAt)
		}
	case "version":
	default:
		return 0, fmt.Errorf("unknown migrate command %q (up, down, status, version)", cmd)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	logger.Infow("goose_run_done", "cmd", cmd, "version", version)
	return version, nil
}
