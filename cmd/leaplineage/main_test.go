package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/cli"
	"github.com/leapstack-labs/leaplineage/internal/cli/testutil"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leaplineage v")
}

func TestHelpCommand(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, want := range []string{"analyze", "reprocess", "watch", "trace", "runs", "metadata", "completion"} {
		assert.Contains(t, out, want)
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := run(t, "completion", shell)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := run(t, "unknown-command")
	assert.Error(t, err)
}

func TestAnalyze_FlagsOverrideConfigFile(t *testing.T) {
	parser := testutil.ParserScript(t, testutil.ColumnGraph)
	dir := t.TempDir()
	t.Chdir(dir)

	config := "output: csv\nstate_path: " + filepath.Join(dir, "state.db") + "\nparser:\n  timeout: 10s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaplineage.yaml"), []byte(config), 0o600))

	argv := []string{"analyze", "--sql", testutil.LineageSQL, "--parser", parser}

	out, errOut, err := run(t, argv...)
	require.NoError(t, err, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "etlSystem,etlJob,appName,sqlPath,sqlNo,srcDb,srcTbl,srcCol,tarDb,tarTbl,tarCol", lines[0])
	assert.Contains(t, lines[1], ",1,ods,src,x,dw,dst,x")

	out, _, err = run(t, append(argv, "-o", "table")...)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 records)")

	_, err = os.Stat(filepath.Join(dir, "state.db"))
	assert.NoError(t, err)
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := run(t, "analyze", "--sql", "SELECT 1", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output")
}

func TestAnalyze_BuiltinParserByDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	out, errOut, err := run(t, "analyze", "--sql", testutil.LineageSQL, "-o", "csv")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, ",1,ods,src,x,dw,dst,x")
}
