package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

var fileExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// LoadFile reads a {table: [columns]} document. The format follows the
// extension; entries whose value is not a list of strings are ignored.
func LoadFile(path string) (core.Schema, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is configured metadata
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		return nil, fmt.Errorf("unsupported metadata file type: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}

	schema := make(core.Schema, len(doc))
	for table, v := range doc {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		cols := make([]string, 0, len(list))
		for _, c := range list {
			if s, ok := c.(string); ok {
				cols = append(cols, s)
			}
		}
		schema[table] = cols
	}
	return schema, nil
}

// CacheName is the cache name of a metadata file: its base name without extension.
func CacheName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FileLoader resolves cache names to metadata files found under a set of
// files and directories.
type FileLoader struct {
	files map[string]string // name -> path
}

// NewFileLoader indexes the metadata files under paths. Directories are
// scanned one level deep.
func NewFileLoader(paths []string) (*FileLoader, error) {
	l := &FileLoader{files: make(map[string]string)}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat metadata path: %w", err)
		}
		if !info.IsDir() {
			l.add(p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				l.add(filepath.Join(p, e.Name()))
			}
		}
	}
	return l, nil
}

func (l *FileLoader) add(path string) {
	if !fileExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}
	name := CacheName(path)
	if _, exists := l.files[name]; !exists {
		l.files[name] = path
	}
}

// Names returns the indexed cache names, sorted.
func (l *FileLoader) Names() []string {
	names := make([]string, 0, len(l.files))
	for n := range l.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load implements Loader.
func (l *FileLoader) Load(_ context.Context, name string) (core.Schema, error) {
	path, ok := l.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return LoadFile(path)
}
