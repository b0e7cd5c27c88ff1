package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3/database"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	// Turso "remote only" driver (no embedded replicas)
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var ErrDBDisabled = errors.New("workflow store disabled: set DB_DSN")

// DriverFor picks the database/sql driver for a DSN: postgres:// URLs use
// pgx, libsql:// and http(s):// URLs use the Turso remote driver and anything
// else is a local SQLite file.
func DriverFor(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "pgx"
	case strings.HasPrefix(lower, "libsql://"), strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return "libsql"
	default:
		return "sqlite"
	}
}

// DialectOf maps the driver behind db to its goose dialect.
func DialectOf(db *sqlx.DB) database.Dialect {
	if db.DriverName() == "pgx" {
		return database.DialectPostgres
	}
	return database.DialectSQLite3
}

func Open(cfg config.DBConfig) (*sqlx.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrDBDisabled
	}

	driver := DriverFor(dsn)
	if driver == "libsql" {
		dsn = ensureAuthTokenQuery(dsn, cfg.Token)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	switch driver {
	case "sqlite":
		// A single connection serializes writers on the local file.
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

type NewDBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

func NewDB(p NewDBParams) (*sqlx.DB, error) {
	db, err := Open(p.Cfg.DB)
	if errors.Is(err, ErrDBDisabled) {
		p.Logger.Infow("workflow_store_disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()
				return fmt.Errorf("ping %s db: %w", db.DriverName(), err)
			}
			p.Logger.Infow("workflow_store_connected", append([]any{"driver", db.DriverName()}, dsnLogFields(p.Cfg.DB.DSN)...)...)

			if p.Cfg.DB.AutoMigrate {
				if _, err := Migrate(ctx, db, "up", p.Logger); err != nil {
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				p.Logger.Warnw("workflow_store_close_failed", "err", err)
			}
			return nil
		},
	})

	return db, nil
}

func ensureAuthTokenQuery(dsn, token string) string {
	if token == "" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}

	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn
	}

	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func dsnLogFields(dsn string) []any {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return []any{"path", dsn}
	}
	return []any{"scheme", u.Scheme, "host", u.Host}
}
