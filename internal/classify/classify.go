// Package classify decides what a single SQL statement means to the lineage engine.
//
// A statement is either a database selector (USE db), a statement that never
// carries lineage (DDL, grants, session and inspection commands), or a
// lineage-bearing statement that must be handed to the parser.
package classify

import (
	"strings"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Kind is the outcome of classifying a statement.
type Kind int

const (
	// Lineage statements are parsed for column lineage.
	Lineage Kind = iota
	// Selector statements change the default database.
	Selector
	// Skip statements carry no lineage.
	Skip
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case Selector:
		return "selector"
	case Skip:
		return "skip"
	default:
		return "lineage"
	}
}

// Result describes a classified statement.
type Result struct {
	Kind Kind
	// Database is the selected database for Selector statements.
	Database string
	// Reason names the matched keyword for Skip statements.
	Reason string
}

// skipKeywords never carry lineage when they lead a statement.
var skipKeywords = map[string]bool{
	"ALTER": true, "DROP": true, "GRANT": true, "REVOKE": true,
	"SET": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
	"EXPLAIN": true, "ANALYZE": true, "TRUNCATE": true, "COMMENT": true,
	"REFRESH": true, "MSCK": true, "CACHE": true, "UNCACHE": true,
}

// skipCreates are the CREATE forms that define objects without data flow.
var skipCreates = map[string]bool{
	"DATABASE": true, "SCHEMA": true, "USER": true, "ROLE": true,
	"INDEX": true, "FUNCTION": true, "PROCEDURE": true,
}

// Classify inspects the leading tokens of a cleaned statement.
// Anything not explicitly recognized is lineage-bearing.
func Classify(stmt string) Result {
	raw := strings.Fields(stmt)
	if len(raw) == 0 {
		return Result{Kind: Skip, Reason: "EMPTY"}
	}
	words := make([]string, len(raw))
	for i, w := range raw {
		words[i] = strings.ToUpper(w)
	}

	first := strings.TrimRight(words[0], ";")
	if first == "USE" {
		if len(raw) < 2 {
			return Result{Kind: Skip, Reason: "USE"}
		}
		return Result{Kind: Selector, Database: selectorName(raw[1])}
	}

	if skipKeywords[first] {
		return Result{Kind: Skip, Reason: first}
	}

	if first != "CREATE" || len(words) < 2 {
		return Result{Kind: Lineage}
	}

	second := words[1]
	if skipCreates[second] {
		return Result{Kind: Skip, Reason: "CREATE " + second}
	}

	object := second
	if (second == "TEMPORARY" || second == "TEMP") && len(words) >= 3 {
		object = words[2]
	}
	if object != "TABLE" && object != "VIEW" {
		return Result{Kind: Lineage}
	}

	if hasToken(words, "AS") && hasToken(words, "SELECT") {
		return Result{Kind: Lineage}
	}
	if object != second {
		return Result{Kind: Skip, Reason: "CREATE " + second + " " + object}
	}
	return Result{Kind: Skip, Reason: "CREATE " + object}
}

// Dialect returns the dialect a statement must be parsed with.
// FROM-first queries are rejected by strict dialects.
func Dialect(stmt, configured string) string {
	fields := strings.Fields(stmt)
	if len(fields) > 0 && strings.EqualFold(fields[0], "FROM") {
		return core.DialectNonValidating
	}
	return configured
}

func selectorName(tok string) string {
	return strings.Trim(strings.TrimRight(tok, ";"), "`\"[]")
}

// hasToken matches whole tokens, ignoring wrapping parentheses.
func hasToken(words []string, want string) bool {
	for _, w := range words {
		if strings.Trim(w, "()") == want {
			return true
		}
	}
	return false
}
