package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver ("sqlite3")
	log "github.com/sirupsen/logrus"
)

// Drivers accepted by OpenSQLBackend.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

const defaultTable = "kv_store"

// SQLBackend keeps the persistent store in a two-column table.
type SQLBackend struct {
	db     *sql.DB
	driver string
	table  string
}

// OpenSQLBackend opens dsn with driver and prepares the table.
func OpenSQLBackend(ctx context.Context, driver, dsn string) (*SQLBackend, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	b, err := NewSQLBackend(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("persistent store opened (driver: %s)", driver)
	return b, nil
}

// NewSQLBackend uses an already open database.
func NewSQLBackend(ctx context.Context, db *sql.DB, driver string) (*SQLBackend, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("cache: unsupported driver %q", driver)
	}
	b := &SQLBackend{db: db, driver: driver, table: defaultTable}
	schema := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)", b.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return b, nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (b *SQLBackend) rebind(query string) string {
	if b.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *SQLBackend) GetItem(key string) (string, bool, error) {
	var value string
	err := b.db.QueryRow(b.rebind(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", b.table)), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *SQLBackend) SetItem(key, value string) error {
	query := fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value", b.table)
	_, err := b.db.Exec(b.rebind(query), key, value)
	return err
}

func (b *SQLBackend) RemoveItem(key string) error {
	_, err := b.db.Exec(b.rebind(fmt.Sprintf("DELETE FROM %s WHERE key = ?", b.table)), key)
	return err
}

func (b *SQLBackend) Clear() error {
	_, err := b.db.Exec(fmt.Sprintf("DELETE FROM %s", b.table))
	return err
}

// Close releases the database.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}
