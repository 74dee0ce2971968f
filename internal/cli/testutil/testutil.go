// Package testutil provides helpers for CLI tests: a scratch script tree,
// a scripted parser command and output assertions.
package testutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
)

// ColumnGraph is a parser reply with the single lineage edge ods.src.x -> dw.dst.x.
const ColumnGraph = `[{"data":{"id":"ods.src.x","type":"Column"}},` +
	`{"data":{"id":"dw.dst.x","type":"Column"}},` +
	`{"data":{"id":"e1","source":"ods.src.x","target":"dw.dst.x"}}]`

// LineageSQL is a script with one lineage-bearing statement.
const LineageSQL = "INSERT INTO dw.dst SELECT x FROM ods.src;\n"

// ParserCommand returns a command and arguments that read a request from
// stdin and reply with graph. The test is skipped without a POSIX shell.
func ParserCommand(t *testing.T, graph string) (string, []string) {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh, []string{"-c", "cat >/dev/null; echo '" + graph + "'"}
}

// ParserScript writes an executable script replying with graph and returns
// its path, for callers that can only pass a command path.
func ParserScript(t *testing.T, graph string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "parser.sh")
	script := "#!/bin/sh\ncat >/dev/null\necho '" + graph + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil { //nolint:gosec // test parser must be executable
		t.Fatalf("failed to write parser script: %v", err)
	}
	return path
}

// SetupScriptTree creates a directory of scripts under two systems and
// returns its root:
//
//	F-DD_ODS/load.sql
//	F-DD_ODS/load.hql
//	S_MART/build.SQL
func SetupScriptTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	WriteScript(t, filepath.Join(root, "F-DD_ODS", "load.sql"), LineageSQL)
	WriteScript(t, filepath.Join(root, "F-DD_ODS", "load.hql"), LineageSQL)
	WriteScript(t, filepath.Join(root, "S_MART", "build.SQL"), LineageSQL)
	return root
}

// WriteScript writes content to path, creating parent directories.
func WriteScript(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// SafeBuffer is a bytes.Buffer safe for one writer goroutine and concurrent readers.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
