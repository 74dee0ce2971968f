package state

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// ReplaceJobRecords stores the lineage of one job, replacing whatever an
// earlier run recorded for the same (system, job).
func (s *SQLiteStore) ReplaceJobRecords(ctx context.Context, runID string, job core.JobInfo, records []core.LineageRecord) error {
	if s.db == nil {
		return ErrNotOpen
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM lineage_records WHERE etl_system = ? AND etl_job = ?`,
			job.System, job.Job,
		); err != nil {
			return fmt.Errorf("failed to delete existing lineage: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO lineage_records (
				run_id, etl_system, etl_job, app_name, sql_path, sql_no,
				source_database, source_table, source_column, source_tag,
				target_database, target_table, target_column, target_tag
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range records {
			app, path := r.Job.AppName, r.Job.Path
			if path == "" {
				app, path = job.AppName, job.Path
			}
			if _, err := stmt.ExecContext(ctx,
				runID, job.System, job.Job, app, path, r.StatementIndex,
				r.Source.Database, r.Source.Table, r.Source.Column, int(r.Source.Tag),
				r.Target.Database, r.Target.Table, r.Target.Column, int(r.Target.Tag),
			); err != nil {
				return fmt.Errorf("failed to insert lineage record: %w", err)
			}
		}
		return nil
	})
}

// JobRecords returns the stored lineage of one job in statement order.
func (s *SQLiteStore) JobRecords(ctx context.Context, system, job string) ([]core.LineageRecord, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.queryRecords(ctx, ` WHERE etl_system = ? AND etl_job = ? ORDER BY sql_no, id`, system, job)
}

// AllRecords returns every stored record grouped by job.
func (s *SQLiteStore) AllRecords(ctx context.Context) ([]core.LineageRecord, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.queryRecords(ctx, ` ORDER BY etl_system, etl_job, sql_no, id`)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, clause string, args ...any) ([]core.LineageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT etl_system, etl_job, app_name, sql_path, sql_no,
			source_database, source_table, source_column, source_tag,
			target_database, target_table, target_column, target_tag
		FROM lineage_records`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []core.LineageRecord
	for rows.Next() {
		var (
			r                    core.LineageRecord
			sourceTag, targetTag int
		)
		if err := rows.Scan(
			&r.Job.System, &r.Job.Job, &r.Job.AppName, &r.Job.Path, &r.StatementIndex,
			&r.Source.Database, &r.Source.Table, &r.Source.Column, &sourceTag,
			&r.Target.Database, &r.Target.Table, &r.Target.Column, &targetTag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lineage record: %w", err)
		}
		r.Source.Tag = core.Tag(sourceTag)
		r.Target.Tag = core.Tag(targetTag)
		r.ScriptID = jobKey(r.Job)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Trace walks the stored lineage from column, towards its sources when
// upstream is true and towards derived columns otherwise. Column names are
// matched case-insensitively. A depth of zero or less is unlimited.
func (s *SQLiteStore) Trace(ctx context.Context, column string, upstream bool, depth int) ([]TraceStep, error) {
	records, err := s.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	g := dag.NewGraph()
	canonical := make(map[string]string)
	jobs := make(map[[2]string]map[string]bool)
	for _, r := range records {
		src, tgt := r.Source.QualifiedName(), r.Target.QualifiedName()
		canonical[strings.ToLower(src)] = src
		canonical[strings.ToLower(tgt)] = tgt
		// Self loops carry no lineage.
		if err := g.Link(src, tgt); err != nil {
			continue
		}
		key := [2]string{src, tgt}
		if jobs[key] == nil {
			jobs[key] = make(map[string]bool)
		}
		jobs[key][jobKey(r.Job)] = true
	}

	start, ok := canonical[strings.ToLower(column)]
	if !ok {
		return nil, fmt.Errorf("column %q not found in stored lineage", column)
	}

	hops := g.Walk(start, upstream, depth)
	steps := make([]TraceStep, 0, len(hops))
	for _, h := range hops {
		step := TraceStep{Source: h.From, Target: h.To, Depth: h.Depth}
		if upstream {
			step.Source, step.Target = h.To, h.From
		}
		step.Jobs = sortedSet(jobs[[2]string{step.Source, step.Target}])
		steps = append(steps, step)
	}
	return steps, nil
}

func jobKey(j core.JobInfo) string {
	if j.System == "" {
		return j.Job
	}
	return j.System + "/" + j.Job
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
