package emit

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// insertColumns is the fixed column list of the lineage table.
var insertColumns = []string{
	"ETL_SYSTEM", "ETL_JOB", "SQL_PATH", "SQL_NO",
	"SOURCE_DATABASE", "SOURCE_TABLE", "SOURCE_COLUMN",
	"TARGET_DATABASE", "TARGET_TABLE", "TARGET_COLUMN",
}

// WriteSQL renders a delete-then-insert script for each group and a final COMMIT.
func WriteSQL(w io.Writer, table string, groups []Group) error {
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("-- column lineage\n")
	b.WriteString("-- columns: " + strings.Join(insertColumns, ", ") + "\n")
	b.WriteString("-- ephemeral suffix: " + core.EphemeralSuffix + ", subquery suffix: " + core.SubQuerySuffix + "\n")

	for _, g := range groups {
		b.WriteString("\n")
		fmt.Fprintf(&b, "-- job: %s (%d records)\n", jobLabel(g.Job), len(g.Records))
		b.WriteString(deleteStatement(table, g.Job) + "\n")
		for _, r := range g.Records {
			b.WriteString(insertStatement(table, r) + "\n")
		}
	}

	b.WriteString("\nCOMMIT;\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func jobLabel(j core.JobInfo) string {
	if j.System == "" {
		return j.Job
	}
	return j.System + "/" + j.Job
}

func deleteStatement(table string, j core.JobInfo) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s AND %s;",
		table, matchClause("ETL_SYSTEM", j.System), matchClause("ETL_JOB", j.Job))
}

func matchClause(col, v string) string {
	if v == "" {
		return col + " IS NULL"
	}
	return col + " = " + quote(v)
}

func insertStatement(table string, r core.LineageRecord) string {
	values := []string{
		quote(r.Job.System), quote(r.Job.Job), quote(r.Job.Path), strconv.Itoa(r.StatementIndex),
		quote(r.Source.Database), quote(r.Source.Table), quote(r.Source.Column),
		quote(r.Target.Database), quote(r.Target.Table), quote(r.Target.Column),
	}
	return fmt.Sprintf("INSERT INTO %s (%s)\nVALUES (%s);",
		table, strings.Join(insertColumns, ", "), strings.Join(values, ", "))
}

// quote renders a SQL string literal. Empty values become NULL.
func quote(v string) string {
	if v == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
