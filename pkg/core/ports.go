package core

import "context"

// Dialect names with special meaning to the engine.
const (
	DialectNonValidating = "non-validating"
	DialectHive          = "hive"
	DialectOracle        = "oracle"
)

// Schema maps a table name to its ordered column names.
type Schema map[string][]string

// Parser turns one SQL statement into its column dependency graph.
// A nil hint means no metadata is available.
type Parser interface {
	Parse(ctx context.Context, stmt, dialect string, hint Schema) (*Graph, error)
}

// MetadataProvider looks up a named schema cache.
type MetadataProvider interface {
	Lookup(name string) (Schema, bool)
}
