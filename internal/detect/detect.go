// Package detect finds the tables a script treats as ephemeral.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Policy selects which CREATE statements mark a table as ephemeral.
type Policy string

const (
	// PolicyIntersect marks tables that are both created and dropped.
	PolicyIntersect Policy = "intersect"
	// PolicyAllCreated marks every created table or view.
	PolicyAllCreated Policy = "all_created"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicyAllCreated

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultPolicy, nil
	case PolicyIntersect:
		return PolicyIntersect, nil
	case PolicyAllCreated:
		return PolicyAllCreated, nil
	default:
		return "", fmt.Errorf("unknown ephemeral policy %q (want %s or %s)", s, PolicyIntersect, PolicyAllCreated)
	}
}

var (
	createPattern = regexp.MustCompile(`(?is)CREATE\s+(?:TEMPORARY\s+|TEMP\s+)?(?:TABLE|VIEW)\s+(?:IF\s+NOT\s+EXISTS\s+)?([^\s(;]+)`)
	dropPattern   = regexp.MustCompile(`(?is)DROP\s+(?:TABLE|VIEW)\s+(?:IF\s+EXISTS\s+)?([^\s;,]+)`)
)

// Set is an immutable set of lower-cased, unqualified table names.
type Set struct {
	names map[string]struct{}
}

// NewSet builds a set from raw table identifiers.
func NewSet(names ...string) Set {
	s := Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if c := CleanName(n); c != "" {
			s.names[c] = struct{}{}
		}
	}
	return s
}

// Contains reports whether the table identifier names an ephemeral table.
// Qualified identifiers are matched on their last segment.
func (s Set) Contains(table string) bool {
	if len(s.names) == 0 || table == "" {
		return false
	}
	_, ok := s.names[CleanName(table)]
	return ok
}

// Len returns the number of names in the set.
func (s Set) Len() int {
	return len(s.names)
}

// Names returns the names in sorted order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CleanName strips quoting, lower-cases and drops any database qualifier.
func CleanName(name string) string {
	cleaned := strings.ToLower(strings.Trim(name, "`\"[]"))
	if i := strings.LastIndex(cleaned, "."); i >= 0 {
		cleaned = cleaned[i+1:]
	}
	return strings.Trim(cleaned, "`\"[]")
}

// Detect scans a whole script and returns its ephemeral tables under the policy.
func Detect(script string, policy Policy) Set {
	created := matchNames(createPattern, script)
	if policy != PolicyIntersect {
		return NewSet(created...)
	}

	dropped := NewSet(matchNames(dropPattern, script)...)
	var both []string
	for _, name := range created {
		if dropped.Contains(name) {
			both = append(both, name)
		}
	}
	return NewSet(both...)
}

func matchNames(re *regexp.Regexp, script string) []string {
	matches := re.FindAllStringSubmatch(script, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Lifecycle returns the cleaned names of the tables a single statement
// creates or drops. A table is listed once.
func Lifecycle(stmt string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{createPattern, dropPattern} {
		for _, name := range matchNames(re, stmt) {
			if c := CleanName(name); c != "" && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
