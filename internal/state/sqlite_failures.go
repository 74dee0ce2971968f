package state

import (
	"context"
	"fmt"
	"time"
)

// RecordFailure remembers a script that could not be processed. Repeated
// failures of the same path bump its attempt counter.
func (s *SQLiteStore) RecordFailure(ctx context.Context, runID, path, errMsg string) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_scripts (path, run_id, error, attempts, failed_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			run_id = excluded.run_id,
			error = excluded.error,
			attempts = failed_scripts.attempts + 1,
			failed_at = excluded.failed_at`,
		path, runID, errMsg, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record failure of %s: %w", path, err)
	}
	return nil
}

// ClearFailure forgets a script once it has been processed successfully.
func (s *SQLiteStore) ClearFailure(ctx context.Context, path string) error {
	if s.db == nil {
		return ErrNotOpen
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM failed_scripts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to clear failure of %s: %w", path, err)
	}
	return nil
}

// ListFailures returns recorded failures ordered by path.
func (s *SQLiteStore) ListFailures(ctx context.Context) ([]Failure, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, run_id, error, attempts, failed_at FROM failed_scripts ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []Failure
	for rows.Next() {
		var (
			f        Failure
			failedAt string
		)
		if err := rows.Scan(&f.Path, &f.RunID, &f.Error, &f.Attempts, &failedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		if f.FailedAt, err = parseTime(failedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ListFailedPaths returns the paths of recorded failures ordered by path.
func (s *SQLiteStore) ListFailedPaths(ctx context.Context) ([]string, error) {
	failures, err := s.ListFailures(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(failures))
	for i, f := range failures {
		paths[i] = f.Path
	}
	return paths, nil
}
