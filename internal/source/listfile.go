package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadList parses a list of script paths, one per line.
// Blank lines and lines starting with # are ignored.
func ReadList(r io.Reader) ([]string, error) {
	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list: %w", err)
	}
	return paths, nil
}

// ReadListFile is ReadList over a file.
func ReadListFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: list file is given on the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open list file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadList(f)
}
