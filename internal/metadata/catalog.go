package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// A live catalog cache is one database schema: the cache name is the schema
// name and tables are keyed schema.table.

const pgColumnsQuery = `
	SELECT table_schema, table_name, column_name
	FROM information_schema.columns
	WHERE table_schema = $1
	ORDER BY table_schema, table_name, ordinal_position`

const sqlColumnsQuery = `
	SELECT table_schema, table_name, column_name
	FROM information_schema.columns
	WHERE table_schema = ?
	ORDER BY table_schema, table_name, ordinal_position`

type columnRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectColumns(rows columnRows, name string) (core.Schema, error) {
	var schema core.Schema
	for rows.Next() {
		var sch, table, column string
		if err := rows.Scan(&sch, &table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if schema == nil {
			schema = make(core.Schema)
		}
		key := sch + "." + table
		schema[key] = append(schema[key], column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return schema, nil
}

func allowed(schemas []string, name string) error {
	if len(schemas) > 0 && !slices.Contains(schemas, name) {
		return fmt.Errorf("%w: %s is not a configured schema", ErrNotFound, name)
	}
	return nil
}

// PostgresSource reads column lists from a PostgreSQL catalog.
type PostgresSource struct {
	pool    *pgxpool.Pool
	schemas []string
	logger  *slog.Logger
}

// NewPostgresSource connects to PostgreSQL, retrying transient failures.
// An empty schemas list allows every schema.
func NewPostgresSource(ctx context.Context, dsn string, schemas []string, logger *slog.Logger) (*PostgresSource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := withRetry(ctx, logger, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres metadata source: %w", err)
	}
	return &PostgresSource{pool: pool, schemas: schemas, logger: logger}, nil
}

// Close releases the connection pool.
func (p *PostgresSource) Close() {
	p.pool.Close()
}

// Load implements Loader.
func (p *PostgresSource) Load(ctx context.Context, name string) (core.Schema, error) {
	if err := allowed(p.schemas, name); err != nil {
		return nil, err
	}
	return withRetry(ctx, p.logger, func(ctx context.Context) (core.Schema, error) {
		rows, err := p.pool.Query(ctx, pgColumnsQuery, name)
		if err != nil {
			return nil, fmt.Errorf("get columns: %w", err)
		}
		defer rows.Close()
		return collectColumns(rows, name)
	})
}

// SQLSource reads column lists through database/sql, for DuckDB or any
// driver exposing information_schema.columns with ? placeholders.
type SQLSource struct {
	db      *sql.DB
	schemas []string
	logger  *slog.Logger
}

// OpenDuckDB opens a DuckDB database for catalog reads. An empty dsn is in-memory.
func OpenDuckDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}

// NewSQLSource wraps an open database. An empty schemas list allows every schema.
func NewSQLSource(db *sql.DB, schemas []string, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLSource{db: db, schemas: schemas, logger: logger}
}

// Close closes the underlying database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Load implements Loader.
func (s *SQLSource) Load(ctx context.Context, name string) (core.Schema, error) {
	if err := allowed(s.schemas, name); err != nil {
		return nil, err
	}
	return withRetry(ctx, s.logger, func(ctx context.Context) (core.Schema, error) {
		rows, err := s.db.QueryContext(ctx, sqlColumnsQuery, name)
		if err != nil {
			return nil, fmt.Errorf("get columns: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return collectColumns(rows, name)
	})
}
