package emit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"  // registers "pgx"
	_ "github.com/marcboeker/go-duckdb" // registers "duckdb"
	_ "modernc.org/sqlite"              // registers "sqlite"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Sink drivers.
const (
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

// Sink writes lineage groups straight into a lineage table.
type Sink struct {
	db         *sql.DB
	table      string
	numbered   bool // $1 placeholders instead of ?
	logger     *slog.Logger
	ownsHandle bool
}

// OpenSink opens a database and returns a sink writing into table.
func OpenSink(driver, dsn, table string, logger *slog.Logger) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("sink dsn is required")
	}
	name := driver
	switch driver {
	case DriverSQLite, DriverDuckDB:
	case DriverPostgres, "postgres":
		name = "pgx"
	default:
		return nil, fmt.Errorf("unknown sink driver %q (want sqlite, duckdb or pgx)", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink: %w", err)
	}
	if name == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	s, err := NewSink(db, table, name == "pgx", logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsHandle = true
	return s, nil
}

// NewSink wraps an open database. numbered selects $n placeholders.
func NewSink(db *sql.DB, table string, numbered bool, logger *slog.Logger) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sink{db: db, table: table, numbered: numbered, logger: logger}, nil
}

// Close releases the database if the sink opened it.
func (s *Sink) Close() error {
	if s.db == nil || !s.ownsHandle {
		return nil
	}
	return s.db.Close()
}

// EnsureTable creates the lineage table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database not opened")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ETL_SYSTEM VARCHAR(255),
    ETL_JOB VARCHAR(255),
    SQL_PATH VARCHAR(1024),
    SQL_NO INTEGER,
    SOURCE_DATABASE VARCHAR(255),
    SOURCE_TABLE VARCHAR(255),
    SOURCE_COLUMN VARCHAR(255),
    TARGET_DATABASE VARCHAR(255),
    TARGET_TABLE VARCHAR(255),
    TARGET_COLUMN VARCHAR(255)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create lineage table: %w", err)
	}
	return nil
}

// Write replaces the lineage of every group in one transaction.
func (s *Sink) Write(ctx context.Context, groups []Group) error {
	if s.db == nil {
		return errors.New("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(insertColumns, ", "), s.placeholders(1, len(insertColumns)))

	total := 0
	for _, g := range groups {
		query, args := s.deleteQuery(g.Job)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete lineage of %s: %w", jobLabel(g.Job), err)
		}
		for _, r := range g.Records {
			_, err := tx.ExecContext(ctx, insert,
				nullable(r.Job.System), nullable(r.Job.Job), nullable(r.Job.Path), r.StatementIndex,
				nullable(r.Source.Database), nullable(r.Source.Table), nullable(r.Source.Column),
				nullable(r.Target.Database), nullable(r.Target.Table), nullable(r.Target.Column))
			if err != nil {
				return fmt.Errorf("failed to insert lineage of %s: %w", jobLabel(g.Job), err)
			}
		}
		total += len(g.Records)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lineage: %w", err)
	}
	s.logger.Info("lineage written", "table", s.table, "jobs", len(groups), "records", total)
	return nil
}

func (s *Sink) deleteQuery(j core.JobInfo) (string, []any) {
	var (
		where []string
		args  []any
	)
	for _, kv := range [][2]string{{"ETL_SYSTEM", j.System}, {"ETL_JOB", j.Job}} {
		if kv[1] == "" {
			where = append(where, kv[0]+" IS NULL")
			continue
		}
		args = append(args, kv[1])
		where = append(where, kv[0]+" = "+s.placeholder(len(args)))
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", s.table, strings.Join(where, " AND ")), args
}

func (s *Sink) placeholder(n int) string {
	if s.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *Sink) placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = s.placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
