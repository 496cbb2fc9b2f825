package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered by the two SQLite drivers: "sqlite3" is cgo
// (mattn), "sqlite" is pure Go (modernc).
const (
	DriverCgo    = "sqlite3"
	DriverPureGo = "sqlite"
)

// dsn sets the per-connection pragmas each driver understands in its DSN.
func dsn(driver, path string) (string, error) {
	switch driver {
	case DriverCgo:
		return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPureGo:
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	}
	return "", fmt.Errorf("unsupported sqlite driver %q", driver)
}

// Open opens path with driver, applies migrations from migrationsDir (or the
// embedded set) and returns the store.
func Open(driver, path, migrationsDir string) (*SQLiteStore, error) {
	name, err := dsn(driver, path)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(driver, name)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := RunMigrations(conn, migrationsDir); err != nil {
		_ = conn.Close()
		return nil, err
	}
	store, err := NewSQLiteStore(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}
