package emit

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

func fixtureGroups() []Group {
	load := core.JobInfo{System: "F-DD", Job: "00001", AppName: "F", Path: "F-DD/00001/load.sql"}
	quoted := core.JobInfo{System: "S", Job: "it's", AppName: "S", Path: "S/it's.sql"}
	return []Group{
		{
			Job: load,
			Records: []core.LineageRecord{
				{
					Job: load, StatementIndex: 2,
					Source: core.ColumnRef{Database: "dw", Table: "orders", Column: "id"},
					Target: core.ColumnRef{Database: "mart", Table: "fact", Column: "order_id"},
				},
				{
					Job: load, StatementIndex: 2,
					Source: core.ColumnRef{Table: "stage", Column: "name"},
					Target: core.ColumnRef{Database: "mart", Table: "fact", Column: "name"},
				},
			},
		},
		{Job: core.JobInfo{Job: "adhoc_12345678"}},
		{
			Job: quoted,
			Records: []core.LineageRecord{
				{
					Job: quoted, StatementIndex: 1,
					Source: core.ColumnRef{Database: "a", Table: "b", Column: "c"},
					Target: core.ColumnRef{Database: "d", Table: "e", Column: "f"},
				},
			},
		},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWrite_Golden(t *testing.T) {
	tests := []struct {
		name   string
		format Format
	}{
		{name: "lineage_sql", format: FormatSQL},
		{name: "lineage_json", format: FormatJSON},
		{name: "lineage_csv", format: FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, tt.format, "", fixtureGroups()))
			newGoldie(t).Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestWriteSQL_CustomTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSQL(&buf, "meta.COLUMN_LINEAGE", fixtureGroups()[:1]))
	assert.Contains(t, buf.String(), "DELETE FROM meta.COLUMN_LINEAGE WHERE ETL_SYSTEM = 'F-DD'")
	assert.Contains(t, buf.String(), "INSERT INTO meta.COLUMN_LINEAGE (")
	assert.NotContains(t, buf.String(), DefaultTable)
}

func TestWriteSQL_RejectsInvalidTable(t *testing.T) {
	for _, name := range []string{"t; DROP TABLE x", "a.b.c", "1abc", "tbl name"} {
		err := WriteSQL(&bytes.Buffer{}, name, nil)
		assert.ErrorIs(t, err, ErrInvalidTable, name)
	}
}

func TestMerge_SharedJobKey(t *testing.T) {
	a := core.JobInfo{System: "sys", Job: "load.sql", Path: "sys/a/load.sql"}
	b := core.JobInfo{System: "sys", Job: "load.sql", Path: "sys/b/load.sql"}
	other := core.JobInfo{System: "sys", Job: "other.sql", Path: "sys/other.sql"}
	recA := core.LineageRecord{Job: a, StatementIndex: 1, Target: core.ColumnRef{Table: "t", Column: "a"}}
	recB := core.LineageRecord{Job: b, StatementIndex: 1, Target: core.ColumnRef{Table: "t", Column: "b"}}
	recO := core.LineageRecord{Job: other, StatementIndex: 1, Target: core.ColumnRef{Table: "t", Column: "o"}}

	merged := Merge([]Group{{Job: a, Records: []core.LineageRecord{recA}}, {Job: other, Records: []core.LineageRecord{recO}}, {Job: b, Records: []core.LineageRecord{recB}}})
	require.Len(t, merged, 2)
	assert.Equal(t, a, merged[0].Job)
	assert.Equal(t, []core.LineageRecord{recA, recB}, merged[0].Records)
	assert.Equal(t, other, merged[1].Job)

	var buf bytes.Buffer
	require.NoError(t, WriteSQL(&buf, "", merged))
	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("ETL_JOB = 'load.sql';")))
	assert.Contains(t, out, "'sys/a/load.sql'")
	assert.Contains(t, out, "'sys/b/load.sql'")
}

func TestWriteSQL_NoGroups(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSQL(&buf, "", nil))
	assert.Contains(t, buf.String(), "-- column lineage")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\nCOMMIT;\n")))
	assert.NotContains(t, buf.String(), "DELETE")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "NULL", quote(""))
	assert.Equal(t, "'abc'", quote("abc"))
	assert.Equal(t, "'o''brien'''", quote("o'brien'"))
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, fixtureGroups()))

	out := buf.String()
	assert.Contains(t, out, "F-DD/00001")
	assert.Contains(t, out, "dw.orders.id")
	assert.Contains(t, out, "mart.fact.order_id")
	assert.Contains(t, out, "stage.name")
	assert.Contains(t, out, "S/it's")
	assert.Contains(t, out, "(3 records)")
}

func TestWriteTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []Group{{Job: core.JobInfo{Job: "x"}}}))
	assert.Equal(t, "(0 records)\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, fixtureGroups()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, ExportColumns, rows[0])
	assert.Equal(t, []string{"F-DD", "00001", "F", "F-DD/00001/load.sql", "2", "dw", "orders", "id", "mart", "fact", "order_id"}, rows[1])
	assert.Equal(t, "", rows[2][5])
	assert.Equal(t, "stage", rows[2][6])
	assert.Equal(t, "it's", rows[3][1])
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatSQL},
		{in: "sql", want: FormatSQL},
		{in: "json", want: FormatJSON},
		{in: "csv", want: FormatCSV},
		{in: "xlsx", want: FormatXLSX},
		{in: "table", want: FormatTable},
		{in: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportRows(t *testing.T) {
	rows := ExportRows(fixtureGroups())
	require.Len(t, rows, 3)
	assert.Equal(t, ExportRow{
		EtlSystem: "S", EtlJob: "it's", AppName: "S", SQLPath: "S/it's.sql", SQLNo: 1,
		SrcDB: "a", SrcTbl: "b", SrcCol: "c", TarDB: "d", TarTbl: "e", TarCol: "f",
	}, rows[2])
	assert.Len(t, rows[0].Values(), len(ExportColumns))
}
