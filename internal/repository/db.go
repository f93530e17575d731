package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is an opened catalog connection. Pool is nil for sqlite.
type DB struct {
	Driver *entsql.Driver
	Pool   *pgxpool.Pool
}

func (db *DB) Dialect() string { return db.Driver.Dialect() }

// Open connects to the catalog named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	switch cfg.Driver {
	case "", dialect.Postgres:
		return openPostgres(ctx, cfg, logger)
	case dialect.SQLite:
		return OpenSQLite(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// openPostgres creates a pgx pool and wraps it for the ent SQL driver.
func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "eye-pacs"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{Driver: entsql.OpenDB(dialect.Postgres, db), Pool: pool}, nil
}

// OpenSQLite opens a file-backed catalog, used for single-host installs and tests.
func OpenSQLite(dsn string, logger *slog.Logger) (*DB, error) {
	if dsn == "" {
		dsn = "file:ehp.db"
	}
	logger.Info("opening sqlite catalog", "dsn", dsn)
	db, err := stdsql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite catalog", "error", err)
		return nil, err
	}
	// One writer avoids SQLITE_BUSY between the ingest and extract jobs.
	db.SetMaxOpenConns(1)
	return &DB{Driver: entsql.OpenDB(dialect.SQLite, db)}, nil
}

// Close closes the database connections gracefully
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	logger.Info("closing database connections")
	if err := db.Driver.Close(); err != nil {
		logger.Error("failed to close database driver", "error", err)
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.Driver.DB().PingContext(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS ehp_reports (
	report_id      TEXT PRIMARY KEY,
	report_name    TEXT NOT NULL,
	report_addr    TEXT NOT NULL,
	report_time    TEXT NOT NULL,
	report_machine TEXT NOT NULL,
	register_id    TEXT NULL,
	patient_id     TEXT NULL,
	report_value   TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ehp_reports_report_time_idx ON ehp_reports (report_time)`,
	`CREATE INDEX IF NOT EXISTS ehp_reports_register_id_idx ON ehp_reports (register_id)`,
}

// EnsureSchema creates the catalog table and its indexes when absent.
func EnsureSchema(ctx context.Context, db *DB, logger *slog.Logger) error {
	for _, ddl := range schemaDDL {
		var res stdsql.Result
		if err := db.Driver.Exec(ctx, ddl, []any{}, &res); err != nil {
			logger.Error("schema migration failed", "error", err)
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Debug("catalog schema ensured")
	return nil
}
