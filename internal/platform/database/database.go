package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Connect opens and pings the archive database. driver is "pgx" or "sqlite3".
func Connect(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one connection, or every ":memory:" connection gets its own database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to %s database: %w", driver, err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS grading_job_results (
    job_id         TEXT PRIMARY KEY,
    label          TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    student_count  INTEGER NOT NULL,
    question_count INTEGER NOT NULL,
    graded_count   INTEGER NOT NULL,
    failed_count   INTEGER NOT NULL,
    results        TEXT NOT NULL,
    created_at     TIMESTAMP NOT NULL,
    finished_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grading_job_results_created_at ON grading_job_results (created_at);
`

// Migrate creates the archive tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database.Migrate: %w", err)
		}
	}
	return nil
}
