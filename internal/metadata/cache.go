package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS metadata_columns (
	cache_name  TEXT NOT NULL,
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	position    INTEGER NOT NULL,
	PRIMARY KEY (cache_name, table_name, column_name)
)`

// SQLiteCache persists loaded caches so other processes can attach them
// without reloading. Stores use INSERT OR IGNORE, so racing writers of one
// cache converge on a single copy.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens or creates a cache database. Use ":memory:" in tests.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata cache: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize metadata cache: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Close closes the cache database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Load implements Loader.
func (c *SQLiteCache) Load(ctx context.Context, name string) (core.Schema, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT table_name, column_name FROM metadata_columns
		 WHERE cache_name = ? ORDER BY table_name, position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schema core.Schema
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan metadata cache: %w", err)
		}
		if schema == nil {
			schema = make(core.Schema)
		}
		schema[table] = append(schema[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata cache: %w", err)
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return schema, nil
}

// Store writes a cache. Existing rows for the same name are kept.
func (c *SQLiteCache) Store(ctx context.Context, name string, s core.Schema) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO metadata_columns (cache_name, table_name, column_name, position)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for table, cols := range s {
		for i, col := range cols {
			if _, err := stmt.ExecContext(ctx, name, table, col, i); err != nil {
				return fmt.Errorf("failed to store column %s.%s: %w", table, col, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata cache: %w", err)
	}
	return nil
}

// Names returns the stored cache names, sorted.
func (c *SQLiteCache) Names(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM metadata_columns ORDER BY cache_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata caches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan cache name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Cached reads through the cache: hits come from c, misses are loaded from
// inner and stored before returning.
func Cached(c *SQLiteCache, inner Loader) Loader {
	return LoaderFunc(func(ctx context.Context, name string) (core.Schema, error) {
		s, err := c.Load(ctx, name)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) || inner == nil {
			return nil, err
		}
		s, err = inner.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := c.Store(ctx, name, s); err != nil {
			return nil, err
		}
		return s, nil
	})
}
