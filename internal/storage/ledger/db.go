package ledger

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS digest_runs (
		run_id TEXT PRIMARY KEY,
		file_timestamp TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		total_items INTEGER NOT NULL,
		unique_users INTEGER NOT NULL,
		average_title_length DOUBLE PRECISION NOT NULL,
		raw_path TEXT NOT NULL,
		summary_path TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS digest_run_users (
		run_id TEXT NOT NULL REFERENCES digest_runs (run_id),
		user_key TEXT NOT NULL,
		item_count INTEGER NOT NULL,
		PRIMARY KEY (run_id, user_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_digest_runs_started_at ON digest_runs (started_at)`,
}

// Open connects to the ledger database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
