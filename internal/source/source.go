// Package source locates SQL scripts and derives the job they belong to.
// Scripts come from inline text, a file, a directory tree or an S3 prefix.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Script is one unit of lineage work.
type Script struct {
	ID      string // stable identity: system/job, or adhoc_<hash> for inline text
	Text    string
	Job     core.JobInfo
	Dialect string // empty uses the configured dialect
}

// ScriptExtensions lists the recognised script suffixes, compared case-insensitively.
var ScriptExtensions = []string{".sql", ".hql"}

// IsScript reports whether a path has a recognised script extension.
func IsScript(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range ScriptExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Discover walks root recursively and returns every script path once, sorted.
// Paths differing only in case are treated as the same file; the first seen wins.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	seen := make(map[string]bool)
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsScript(path) {
			return nil
		}
		key := strings.ToLower(path)
		if seen[key] {
			return nil
		}
		seen[key] = true
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// JobInfoFromPath derives job identity from a path relative to base.
// With at least one directory below base, the first directory is the system
// and its prefix before the first underscore is the app name.
func JobInfoFromPath(path, base string) core.JobInfo {
	info := core.JobInfo{Job: filepath.Base(path), Path: path}

	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return info
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		info.System = parts[0]
		info.AppName = appNameOf(parts[0])
	}
	return info
}

// ScriptKey returns the slash-separated path of a script relative to base,
// or the cleaned path when it lies outside base. Two distinct files never
// share a key, unlike their (system, job) pair.
func ScriptKey(path, base string) string {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// ObjectKey returns an object key relative to prefix.
func ObjectKey(key, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

// KeyJobInfo derives job identity from a slash-separated object key relative to prefix.
func KeyJobInfo(key, prefix string) core.JobInfo {
	rel := ObjectKey(key, prefix)
	parts := strings.Split(rel, "/")
	info := core.JobInfo{Job: parts[len(parts)-1], Path: key}
	if len(parts) >= 2 {
		info.System = parts[0]
		info.AppName = appNameOf(parts[0])
	}
	return info
}

func appNameOf(system string) string {
	if i := strings.Index(system, "_"); i >= 0 {
		return system[:i]
	}
	return system
}

// FromSQL wraps inline script text. The job is adhoc_ plus a content hash.
func FromSQL(text string) Script {
	sum := sha256.Sum256([]byte(text))
	job := "adhoc_" + hex.EncodeToString(sum[:])[:8]
	return Script{ID: job, Text: text, Job: core.JobInfo{Job: job}}
}

// Load reads a script file and derives its job relative to base.
// An empty base uses the file's parent directory.
func Load(path, base string) (Script, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path comes from discovery or the command line
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	text, err := Decode(raw)
	if err != nil {
		return Script{}, fmt.Errorf("failed to decode script %s: %w", path, err)
	}
	if base == "" {
		base = filepath.Dir(path)
	}
	return Script{ID: ScriptKey(path, base), Text: text, Job: JobInfoFromPath(path, base)}, nil
}

// DialectFor picks the parser dialect for a script path: hive for .hql and
// .hive files, otherwise the fallback.
func DialectFor(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hql", ".hive":
		return core.DialectHive
	}
	return fallback
}
