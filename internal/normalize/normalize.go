// Package normalize turns raw parser identifiers into resolved column references.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Database tokens the parser emits when it cannot name a database.
var placeholderDatabases = map[string]bool{
	"<unknown>": true,
	"<default>": true,
}

// Context carries the per-statement state needed to normalize identifiers.
type Context struct {
	Ephemeral       detect.Set
	SubQueries      map[string]bool
	CurrentDatabase string
	// ScriptID seeds the subquery name hash so aliases reused by other scripts
	// do not collide. It must be unique per script.
	ScriptID       string
	StatementIndex int
}

// Split breaks a dotted id into database, table and column. Ids with more
// than three segments keep the last three.
func Split(id string) (database, table, column string) {
	parts := core.SplitID(id)
	switch {
	case len(parts) >= 3:
		parts = parts[len(parts)-3:]
		database, table, column = parts[0], parts[1], parts[2]
	case len(parts) == 2:
		table, column = parts[0], parts[1]
	case len(parts) == 1:
		column = parts[0]
	}
	if placeholderDatabases[database] {
		database = ""
	}
	return database, table, column
}

// Normalize resolves id into a tagged column reference. Column-only ids take
// their table from the first non-ephemeral Table candidate. It returns false
// when no table can be determined.
func (c *Context) Normalize(id string, candidates []core.ParentCandidate) (core.ColumnRef, bool) {
	database, table, column := Split(id)
	if column == "" {
		return core.ColumnRef{}, false
	}
	if table == "" {
		database, table = c.tableFromCandidates(candidates)
		if table == "" {
			return core.ColumnRef{}, false
		}
	}

	ref := core.ColumnRef{Database: database, Table: table, Column: column}
	switch {
	case c.SubQueries[table]:
		ref.Table = c.SubQueryTable(table)
		ref.Database = core.SubQueryDB
		ref.Tag = core.TagSubQuery
	case c.Ephemeral.Contains(table):
		ref.Table = table + core.EphemeralSuffix
		if ref.Database == "" {
			ref.Database = core.EphemeralDB
		}
		ref.Tag = core.TagEphemeral
	default:
		if ref.Database == "" && c.CurrentDatabase != "" {
			ref.Database = c.CurrentDatabase
		}
	}
	return ref, true
}

// SubQueryTable synthesizes the collision-free table name of a subquery alias.
func (c *Context) SubQueryTable(alias string) string {
	var b strings.Builder
	b.WriteString(alias)
	b.WriteByte('_')
	b.WriteString(JobHash(c.ScriptID))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(c.StatementIndex))
	b.WriteString(core.SubQuerySuffix)
	return b.String()
}

func (c *Context) tableFromCandidates(candidates []core.ParentCandidate) (string, string) {
	for _, cand := range candidates {
		if cand.Kind != core.NodeTable || cand.Name == "" || c.Ephemeral.Contains(cand.Name) {
			continue
		}
		parts := core.SplitID(cand.Name)
		if len(parts) == 1 {
			return "", parts[0]
		}
		db := parts[len(parts)-2]
		if placeholderDatabases[db] {
			db = ""
		}
		return db, parts[len(parts)-1]
	}
	return "", ""
}

// JobHash returns the first eight hex digits of the SHA-256 of a job id.
func JobHash(jobID string) string {
	sum := sha256.Sum256([]byte(jobID))
	return hex.EncodeToString(sum[:])[:8]
}
