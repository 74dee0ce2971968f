// Package emit renders lineage records for persistence and review.
//
// The sql format is a delete-then-insert script keyed by (ETL_SYSTEM, ETL_JOB)
// so re-running a job replaces its previous lineage. The json, csv and xlsx
// formats share one flat export row; table is for terminals.
package emit

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatSQL   Format = "sql"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatTable Format = "table"
)

// DefaultTable is the lineage table written by the sql format and the sink.
const DefaultTable = "LINEAGE_TABLE"

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ParseFormat validates a format name. Empty means sql.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatSQL, nil
	case FormatSQL, FormatJSON, FormatCSV, FormatXLSX, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want sql, json, csv, xlsx or table)", s)
	}
}

// ValidateTable checks that name can be spliced into SQL unquoted.
func ValidateTable(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// Group is the lineage of one job, replaced as a unit.
type Group struct {
	Job     core.JobInfo
	Records []core.LineageRecord
}

// Merge combines groups that share a (system, job) key, so each key is
// deleted and reinserted once. Merged groups take the position and Job of
// their first occurrence; records keep their own job and path.
func Merge(groups []Group) []Group {
	type key struct{ system, job string }
	at := make(map[key]int, len(groups))
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		k := key{g.Job.System, g.Job.Job}
		if i, ok := at[k]; ok {
			out[i].Records = append(out[i].Records, g.Records...)
			continue
		}
		at[k] = len(out)
		g.Records = append([]core.LineageRecord(nil), g.Records...)
		out = append(out, g)
	}
	return out
}

// Write renders groups in the given format. table names the target of the
// sql format; empty uses DefaultTable.
func Write(w io.Writer, format Format, table string, groups []Group) error {
	switch format {
	case FormatSQL, "":
		return WriteSQL(w, table, groups)
	case FormatJSON:
		return WriteJSON(w, groups)
	case FormatCSV:
		return WriteCSV(w, groups)
	case FormatXLSX:
		return WriteXLSX(w, groups)
	case FormatTable:
		return WriteTable(w, groups)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// ExportRow is the flat export shape of a record.
type ExportRow struct {
	EtlSystem string `json:"etlSystem"`
	EtlJob    string `json:"etlJob"`
	AppName   string `json:"appName"`
	SQLPath   string `json:"sqlPath"`
	SQLNo     int    `json:"sqlNo"`
	SrcDB     string `json:"srcDb"`
	SrcTbl    string `json:"srcTbl"`
	SrcCol    string `json:"srcCol"`
	TarDB     string `json:"tarDb"`
	TarTbl    string `json:"tarTbl"`
	TarCol    string `json:"tarCol"`
}

// ExportColumns are the export headers in column order.
var ExportColumns = []string{
	"etlSystem", "etlJob", "appName", "sqlPath", "sqlNo",
	"srcDb", "srcTbl", "srcCol", "tarDb", "tarTbl", "tarCol",
}

// NewExportRow flattens a record.
func NewExportRow(r core.LineageRecord) ExportRow {
	return ExportRow{
		EtlSystem: r.Job.System,
		EtlJob:    r.Job.Job,
		AppName:   r.Job.AppName,
		SQLPath:   r.Job.Path,
		SQLNo:     r.StatementIndex,
		SrcDB:     r.Source.Database,
		SrcTbl:    r.Source.Table,
		SrcCol:    r.Source.Column,
		TarDB:     r.Target.Database,
		TarTbl:    r.Target.Table,
		TarCol:    r.Target.Column,
	}
}

// Values returns the row in ExportColumns order.
func (r ExportRow) Values() []string {
	return []string{
		r.EtlSystem, r.EtlJob, r.AppName, r.SQLPath, strconv.Itoa(r.SQLNo),
		r.SrcDB, r.SrcTbl, r.SrcCol, r.TarDB, r.TarTbl, r.TarCol,
	}
}

// ExportRows flattens every record of every group in order.
func ExportRows(groups []Group) []ExportRow {
	var rows []ExportRow
	for _, g := range groups {
		for _, r := range g.Records {
			rows = append(rows, NewExportRow(r))
		}
	}
	return rows
}
