package lineage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/internal/metadata"
	"github.com/leapstack-labs/leaplineage/internal/parser"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// pair renders a record as "source -> target" for compact assertions.
func pair(r core.LineageRecord) string {
	return r.Source.QualifiedName() + " -> " + r.Target.QualifiedName()
}

func pairs(records []core.LineageRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, pair(r))
	}
	return out
}

func newEngine(t *testing.T, p core.Parser, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{Parser: p, Logger: testutil.NewTestLogger(t), Workers: 2}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func script(id, text string) source.Script {
	return source.Script{ID: id, Text: text, Job: core.JobInfo{System: "sys", Job: id}}
}

func TestNew_RequiresParser(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTag, m)

	m, err = ParseMode("collapse")
	require.NoError(t, err)
	assert.Equal(t, ModeCollapse, m)

	_, err = ParseMode("flatten")
	assert.Error(t, err)
}

func TestProcessScript_PrunesTransitiveEdges(t *testing.T) {
	const stmt = "INSERT INTO c.t SELECT x FROM a.t"
	p := testutil.NewFakeParser().On(stmt, testutil.NewGraph().
		Chain("a.t.x", "b.t.x", "c.t.x").
		Edge("a.t.x", "c.t.x").
		Build())

	res := newEngine(t, p).ProcessScript(context.Background(), script("job", stmt+";"))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a.t.x -> b.t.x", "b.t.x -> c.t.x"}, pairs(res.Records))
	assert.Equal(t, 1, res.Stats.Pruned)
}

func TestProcessScript_TempTable(t *testing.T) {
	const (
		create = "CREATE TEMP TABLE tmp AS SELECT x FROM src"
		insert = "INSERT INTO dst SELECT x FROM tmp"
	)
	newParser := func() *testutil.FakeParser {
		return testutil.NewFakeParser().
			On(create, testutil.NewGraph().Edge("src.x", "tmp.x").Build()).
			On(insert, testutil.NewGraph().Edge("tmp.x", "dst.x").Build())
	}
	text := create + ";\n" + insert + ";"

	t.Run("tag", func(t *testing.T) {
		res := newEngine(t, newParser()).ProcessScript(context.Background(), script("job", text))
		require.NoError(t, res.Err)
		assert.Equal(t, []string{"tmp"}, res.Ephemeral)
		assert.Equal(t, []string{
			"src.x -> <TEMP_DB>.tmp_TEMP_TBL.x",
			"<TEMP_DB>.tmp_TEMP_TBL.x -> dst.x",
		}, pairs(res.Records))
		assert.Equal(t, core.TagEphemeral, res.Records[0].Target.Tag)
		assert.Equal(t, 1, res.Records[0].StatementIndex)
		assert.Equal(t, 2, res.Records[1].StatementIndex)
	})

	t.Run("collapse", func(t *testing.T) {
		res := newEngine(t, newParser(), func(o *Options) { o.Mode = ModeCollapse }).
			ProcessScript(context.Background(), script("job", text))
		require.NoError(t, res.Err)
		assert.Equal(t, []string{"src.x -> dst.x"}, pairs(res.Records))
		assert.Equal(t, 2, res.Records[0].StatementIndex)
		assert.Equal(t, 1, res.Stats.Records)
	})
}

func TestProcessScript_CollapseTempAppendsAndRecreation(t *testing.T) {
	const (
		create   = "CREATE TEMP TABLE tmp AS SELECT a FROM s1"
		appendTo = "INSERT INTO tmp SELECT a FROM s2"
		read     = "INSERT INTO dst SELECT a FROM tmp"
		drop     = "DROP TABLE tmp"
		recreate = "CREATE TEMP TABLE tmp AS SELECT a FROM s3"
		reread   = "INSERT INTO dst2 SELECT a FROM tmp"
	)
	p := testutil.NewFakeParser().
		On(create, testutil.NewGraph().Edge("s1.a", "tmp.a").Build()).
		On(appendTo, testutil.NewGraph().Edge("s2.a", "tmp.a").Build()).
		On(read, testutil.NewGraph().Edge("tmp.a", "dst.a").Build()).
		On(recreate, testutil.NewGraph().Edge("s3.a", "tmp.a").Build()).
		On(reread, testutil.NewGraph().Edge("tmp.a", "dst2.a").Build())
	text := create + ";\n" + appendTo + ";\n" + read + ";\n" + drop + ";\n" + recreate + ";\n" + reread + ";"

	res := newEngine(t, p, func(o *Options) { o.Mode = ModeCollapse }).
		ProcessScript(context.Background(), script("job", text))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"s1.a -> dst.a", "s2.a -> dst.a", "s3.a -> dst2.a"}, pairs(res.Records))
}

func TestProcessScript_BuiltinParser(t *testing.T) {
	t.Run("temp table appends collapse to real sources", func(t *testing.T) {
		text := `CREATE TEMP TABLE tmp AS SELECT o.id, o.amount FROM ods.orders o;
INSERT INTO tmp SELECT id, amount FROM ods.refunds;
INSERT INTO dw.fact SELECT t.id, sum(t.amount) AS total FROM tmp t GROUP BY t.id;
DROP TABLE tmp;`

		res := newEngine(t, parser.NewBuiltin(), func(o *Options) { o.Mode = ModeCollapse }).
			ProcessScript(context.Background(), script("job", text))
		require.NoError(t, res.Err)
		assert.Equal(t, []string{"tmp"}, res.Ephemeral)
		assert.Equal(t, []string{
			"ods.orders.id -> dw.fact.id",
			"ods.refunds.id -> dw.fact.id",
			"ods.orders.amount -> dw.fact.total",
			"ods.refunds.amount -> dw.fact.total",
		}, pairs(res.Records))
		assert.Zero(t, res.Stats.ParseFailures)
	})

	t.Run("derived table is traced", func(t *testing.T) {
		const stmt = "INSERT INTO dw.dst SELECT a.x FROM (SELECT x FROM dw.src) a"

		res := newEngine(t, parser.NewBuiltin()).ProcessScript(context.Background(), script("job-a", stmt))
		require.NoError(t, res.Err)
		assert.Equal(t, []string{
			"dw.src.x -> <SUBQUERY_DB>.a_ba724b9d_1_SUBQRY_TBL.x",
			"<SUBQUERY_DB>.a_ba724b9d_1_SUBQRY_TBL.x -> dw.dst.x",
			"dw.src.x -> dw.dst.x",
		}, pairs(res.Records))
	})

	t.Run("syntax errors count as parse failures", func(t *testing.T) {
		res := newEngine(t, parser.NewBuiltin()).
			ProcessScript(context.Background(), script("job", "INSERT INTO dst SELECT (x FROM src;\nINSERT INTO dst SELECT y FROM src;"))
		require.NoError(t, res.Err)
		assert.Equal(t, 1, res.Stats.ParseFailures)
		assert.Equal(t, []string{"src.y -> dst.y"}, pairs(res.Records))
	})
}

func TestProcessScript_SubQueryNamesDifferPerJob(t *testing.T) {
	const stmt = "INSERT INTO dw.dst SELECT a.x FROM (SELECT x FROM dw.src) a"
	g := testutil.NewGraph().
		SubQuery("a").
		Chain("dw.src.x", "a.x", "dw.dst.x").
		Build()
	p := testutil.NewFakeParser().On(stmt, g)
	e := newEngine(t, p)

	resA := e.ProcessScript(context.Background(), script("job-a", stmt))
	resB := e.ProcessScript(context.Background(), script("job-b", stmt))

	assert.Equal(t, []string{
		"dw.src.x -> <SUBQUERY_DB>.a_ba724b9d_1_SUBQRY_TBL.x",
		"<SUBQUERY_DB>.a_ba724b9d_1_SUBQRY_TBL.x -> dw.dst.x",
		"dw.src.x -> dw.dst.x",
	}, pairs(resA.Records))
	assert.Equal(t, "<SUBQUERY_DB>.a_aff25b3a_1_SUBQRY_TBL.x", resB.Records[0].Target.QualifiedName())
	assert.NotEqual(t, resA.Records[0].Target.Table, resB.Records[0].Target.Table)
}

func TestProcessScript_UseDatabase(t *testing.T) {
	const insert = "INSERT INTO dst SELECT x FROM src"
	p := testutil.NewFakeParser().On(insert, testutil.NewGraph().Edge("src.x", "dst.x").Build())

	res := newEngine(t, p).ProcessScript(context.Background(), script("job", "USE `mart`;\n"+insert+";"))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"mart.src.x -> mart.dst.x"}, pairs(res.Records))
	assert.Equal(t, 1, res.Stats.Selectors)
	assert.Equal(t, 2, res.Records[0].StatementIndex)

	// The selector never reaches the parser.
	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, insert, calls[0].Statement)
}

func TestProcessScript_UseOnlyAffectsLaterStatements(t *testing.T) {
	const insert = "INSERT INTO dst SELECT x FROM src"
	p := testutil.NewFakeParser().On(insert, testutil.NewGraph().Edge("src.x", "dst.x").Build())

	res := newEngine(t, p).ProcessScript(context.Background(),
		script("job", insert+";\nUSE a;\n"+insert+";\nUSE b;\n"+insert+";"))
	assert.Equal(t, []string{
		"src.x -> dst.x",
		"a.src.x -> a.dst.x",
		"b.src.x -> b.dst.x",
	}, pairs(res.Records))
}

func TestProcessScript_FailureIsolation(t *testing.T) {
	const (
		good1 = "INSERT INTO b.t SELECT x FROM a.t"
		bad   = "INSERT INTO broken"
		boom  = "INSERT INTO panics"
		good2 = "INSERT INTO d.t SELECT y FROM c.t"
	)
	p := testutil.NewFakeParser().
		On(good1, testutil.NewGraph().Edge("a.t.x", "b.t.x").Build()).
		Fail(bad, errors.New("syntax error")).
		Panic(boom).
		On(good2, testutil.NewGraph().Edge("c.t.y", "d.t.y").Build())

	text := fmt.Sprintf("%s;\n%s;\n%s;\n%s;", good1, bad, boom, good2)
	res := newEngine(t, p).ProcessScript(context.Background(), script("job", text))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a.t.x -> b.t.x", "c.t.y -> d.t.y"}, pairs(res.Records))
	assert.Equal(t, 2, res.Stats.ParseFailures)
	assert.Equal(t, 4, res.Records[1].StatementIndex)
}

func TestProcessScript_SkipsAndDialects(t *testing.T) {
	p := testutil.NewFakeParser()
	text := `SET hive.exec.dynamic.partition=true;
DROP TABLE IF EXISTS tmp;
CREATE TABLE t (id INT);
CREATE TABLE t2 AS SELECT id FROM t;
FROM src INSERT INTO dst SELECT x;`

	res := newEngine(t, p, func(o *Options) { o.Dialect = "hive" }).
		ProcessScript(context.Background(), script("job", text))
	assert.Equal(t, 3, res.Stats.Skipped)
	assert.Equal(t, 2, res.Stats.Parsed)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "hive", calls[0].Dialect)
	assert.Equal(t, core.DialectNonValidating, calls[1].Dialect)
}

func TestProcessScript_NormalizationFailureDropsPair(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT x FROM src"
	// The only candidate owning x is ephemeral, so no table can be recovered.
	g := testutil.NewGraph().
		Column("x", "tmp").
		Column("dst.x", "dst").
		Edge("x", "dst.x").
		Build()
	p := testutil.NewFakeParser().On(stmt, g)

	text := "CREATE TABLE tmp AS SELECT x FROM s;\n" + stmt + ";"
	res := newEngine(t, p).ProcessScript(context.Background(), script("job", text))
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stats.Dropped)
}

func TestProcessScript_Header(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT x FROM tmp"
	p := testutil.NewFakeParser().On(stmt, testutil.NewGraph().Edge("tmp.x", "dst.x").Build())
	e := newEngine(t, p, func(o *Options) { o.Policy = detect.PolicyIntersect })

	text := "/*---\nsystem: CRM_core\njob: nightly\ndialect: hive\nephemeral_policy: all_created\n---*/\n" +
		"CREATE TABLE tmp AS SELECT x FROM src;\n" + stmt + ";"
	res := e.ProcessScript(context.Background(), script("orig", text))
	require.NoError(t, res.Err)

	assert.Equal(t, "orig", res.Script.ID)
	assert.Equal(t, "CRM_core", res.Script.Job.System)
	assert.Equal(t, "CRM", res.Script.Job.AppName)
	assert.Equal(t, []string{"tmp"}, res.Ephemeral)
	require.NotEmpty(t, res.Records)
	assert.Equal(t, "nightly", res.Records[0].Job.Job)
	for _, c := range p.Calls() {
		assert.Equal(t, "hive", c.Dialect)
	}

	skipped := e.ProcessScript(context.Background(), script("x", "/*---\nskip: true\n---*/\n"+stmt))
	assert.True(t, skipped.Skipped)
	assert.Empty(t, skipped.Records)

	bad := e.ProcessScript(context.Background(), script("x", "/*---\nowner: me\n---*/\n"+stmt))
	assert.Error(t, bad.Err)
}

func TestProcessScript_MetadataHint(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT * FROM src"
	p := testutil.NewFakeParser()
	reg := metadata.NewRegistry(nil, nil)
	reg.Put("dw", core.Schema{"src": {"a", "b"}})

	e := newEngine(t, p, func(o *Options) {
		o.Metadata = reg
		o.MetadataNames = []string{"dw", "missing"}
	})
	e.ProcessScript(context.Background(), script("job", stmt))

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, core.Schema{"src": {"a", "b"}}, calls[0].Hint)

	// Without a provider the parser runs without hints.
	p2 := testutil.NewFakeParser()
	newEngine(t, p2, func(o *Options) { o.MetadataNames = []string{"dw"} }).
		ProcessScript(context.Background(), script("job", stmt))
	assert.Nil(t, p2.Calls()[0].Hint)
}

func TestProcessScript_AttachesHeaderMetadata(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT * FROM src"
	p := testutil.NewFakeParser()
	loads := 0
	reg := metadata.NewRegistry(metadata.LoaderFunc(func(_ context.Context, name string) (core.Schema, error) {
		loads++
		if name != "ods" {
			return nil, metadata.ErrNotFound
		}
		return core.Schema{"src": {"id"}}, nil
	}), nil)

	e := newEngine(t, p, func(o *Options) {
		o.Metadata = reg
		o.Workers = 1
	})
	text := "/*---\nmetadata: [ods]\n---*/\n" + stmt
	e.ProcessScript(context.Background(), script("a", text))
	e.ProcessScript(context.Background(), script("b", text))

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, core.Schema{"src": {"id"}}, calls[0].Hint)
	assert.Equal(t, core.Schema{"src": {"id"}}, calls[1].Hint)
	assert.Equal(t, 1, loads)
}

func TestProcessScript_Clean(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT x FROM src WHERE dt IN ()"
	p := testutil.NewFakeParser().On(stmt, testutil.NewGraph().Edge("src.x", "dst.x").Build())

	text := "-- nightly load\nINSERT INTO dst SELECT x FROM src WHERE dt IN ${dates};"
	res := newEngine(t, p, func(o *Options) { o.Clean = true }).ProcessScript(context.Background(), script("job", text))
	assert.Equal(t, []string{"src.x -> dst.x"}, pairs(res.Records))
}

func TestProcessScript_Idempotent(t *testing.T) {
	const stmt = "INSERT INTO dw.dst SELECT a.x FROM (SELECT x FROM dw.src) a"
	p := testutil.NewFakeParser().On(stmt, testutil.NewGraph().
		SubQuery("a").
		Chain("dw.src.x", "a.x", "dw.dst.x").
		Edge("dw.src.x", "dw.dst.x").
		Build())
	e := newEngine(t, p)

	first := e.ProcessScript(context.Background(), script("job", stmt))
	for range 5 {
		again := e.ProcessScript(context.Background(), script("job", stmt))
		assert.Equal(t, first.Records, again.Records)
	}
}

func TestProcessScript_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newEngine(t, testutil.NewFakeParser()).ProcessScript(ctx, script("job", "SELECT 1;"))
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRun_Usage(t *testing.T) {
	e := newEngine(t, testutil.NewFakeParser())

	tests := []struct {
		name string
		in   Input
	}{
		{name: "neither", in: Input{}},
		{name: "sql and file", in: Input{SQL: "SELECT 1", File: "a.sql"}},
		{name: "file and dir", in: Input{File: "a.sql", Dir: "scripts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestRun_Inputs(t *testing.T) {
	const stmt = "INSERT INTO dst SELECT x FROM src"
	p := testutil.NewFakeParser().On(stmt, testutil.NewGraph().Edge("src.x", "dst.x").Build())
	e := newEngine(t, p)

	root := t.TempDir()
	for _, rel := range []string{"F-DD_00001/b.sql", "F-DD_00001/A.HQL", "other/c.Sql"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(stmt+";"), 0o600))
	}

	t.Run("sql", func(t *testing.T) {
		results, err := e.Run(context.Background(), Input{SQL: stmt})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Script.ID, "adhoc_")
		assert.Len(t, results[0].Records, 1)
	})

	t.Run("dir", func(t *testing.T) {
		results, err := e.Run(context.Background(), Input{Dir: root})
		require.NoError(t, err)
		var ids []string
		for _, r := range results {
			require.NoError(t, r.Err)
			ids = append(ids, r.Script.ID)
		}
		assert.Equal(t, []string{"F-DD_00001/A.HQL", "F-DD_00001/b.sql", "other/c.Sql"}, ids)
		assert.Equal(t, "F-DD", results[0].Records[0].Job.AppName)
	})

	t.Run("file", func(t *testing.T) {
		results, err := e.Run(context.Background(), Input{File: filepath.Join(root, "other", "c.Sql")})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c.Sql", results[0].Script.ID)
	})

	t.Run("directory passed as file", func(t *testing.T) {
		results, err := e.Run(context.Background(), Input{File: root})
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("missing path", func(t *testing.T) {
		results, err := e.Run(context.Background(), Input{File: filepath.Join(root, "nope.sql")})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Error(t, results[0].Err)

		results, err = e.Run(context.Background(), Input{Dir: filepath.Join(root, "nope")})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Error(t, results[0].Err)
	})
}

func TestProcessBatch_KeepsOrder(t *testing.T) {
	p := testutil.NewFakeParser()
	var scripts []source.Script
	for i := range 20 {
		stmt := fmt.Sprintf("INSERT INTO dst%d SELECT x FROM src", i)
		p.On(stmt, testutil.NewGraph().Edge("src.x", fmt.Sprintf("dst%d.x", i)).Build())
		scripts = append(scripts, script(fmt.Sprintf("job-%d", i), stmt))
	}

	results := newEngine(t, p, func(o *Options) { o.Workers = 4 }).ProcessBatch(context.Background(), scripts)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("job-%d", i), r.Script.ID)
		assert.Equal(t, fmt.Sprintf("src.x -> dst%d.x", i), pair(r.Records[0]))
	}
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newEngine(t, testutil.NewFakeParser()).ProcessBatch(ctx, []source.Script{
		script("a", "SELECT 1"), script("b", "SELECT 2"),
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestProcessPaths_DialectFor(t *testing.T) {
	root := t.TempDir()
	hql := filepath.Join(root, "a.hql")
	sql := filepath.Join(root, "b.sql")
	require.NoError(t, os.WriteFile(hql, []byte("INSERT INTO x SELECT 1;"), 0o600))
	require.NoError(t, os.WriteFile(sql, []byte("INSERT INTO y SELECT 1;"), 0o600))

	p := testutil.NewFakeParser()
	results := newEngine(t, p, func(o *Options) { o.Workers = 1 }).ProcessPaths(context.Background(), []string{hql, sql}, root,
		func(path string) string { return source.DialectFor(path, "oracle") })
	require.Len(t, results, 2)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "hive", calls[0].Dialect)
	assert.Equal(t, "oracle", calls[1].Dialect)
}

func TestStatsAdd(t *testing.T) {
	total := Stats{Statements: 1, Records: 2}
	total.Add(Stats{Statements: 3, Records: 4, ParseFailures: 1})
	assert.Equal(t, Stats{Statements: 4, Records: 6, ParseFailures: 1}, total)
}
