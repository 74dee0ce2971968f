package lineage

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Lifecycle maps a cleaned ephemeral table name to the statements that
// create or drop it, in ascending order.
type Lifecycle map[string][]int

// Mark records that statement index creates or drops table.
func (l Lifecycle) Mark(table string, index int) {
	name := detect.CleanName(table)
	l[name] = append(l[name], index)
}

// lastReset returns the latest statement before index that created or
// dropped table, or 0 when there is none.
func (l Lifecycle) lastReset(table string, index int) int {
	marks := l[detect.CleanName(table)]
	i := sort.SearchInts(marks, index)
	if i == 0 {
		return 0
	}
	return marks[i-1]
}

// Collapse splices records through ephemeral tables so only real-to-real
// records remain.
//
// A record reading an ephemeral column is joined with every earlier record
// writing that column since the table was last created or dropped, so
// appends accumulate while a re-creation starts over. Splicing repeats until
// real sources are reached. Spliced records keep the consuming record's
// statement index. Records with a subquery endpoint, and records writing an
// ephemeral table, are dropped. Input order is preserved.
func Collapse(records []core.LineageRecord, lc Lifecycle) []core.LineageRecord {
	writers := make(map[string][]core.LineageRecord)
	for _, r := range records {
		if r.Target.Tag == core.TagEphemeral {
			key := r.Target.QualifiedName()
			writers[key] = append(writers[key], r)
		}
	}

	type edge struct {
		source string
		target string
		index  int
	}
	seen := make(map[edge]bool)

	var out []core.LineageRecord
	for _, r := range records {
		if r.Target.Tag != core.TagNormal {
			continue
		}
		var sources []core.ColumnRef
		switch r.Source.Tag {
		case core.TagNormal:
			sources = []core.ColumnRef{r.Source}
		case core.TagEphemeral:
			sources = upstream(writers, lc, r.Source, r.StatementIndex)
		default:
			continue
		}

		for _, src := range sources {
			e := edge{source: src.QualifiedName(), target: r.Target.QualifiedName(), index: r.StatementIndex}
			if seen[e] {
				continue
			}
			seen[e] = true
			spliced := r
			spliced.Source = src
			out = append(out, spliced)
		}
	}
	return out
}

// upstream returns the real columns feeding an ephemeral column as seen by
// statement index. Each step moves to a strictly earlier statement, which
// bounds cycles.
func upstream(writers map[string][]core.LineageRecord, lc Lifecycle, col core.ColumnRef, index int) []core.ColumnRef {
	from := lc.lastReset(strings.TrimSuffix(col.Table, core.EphemeralSuffix), index)

	var out []core.ColumnRef
	for _, w := range writers[col.QualifiedName()] {
		if w.StatementIndex >= index || w.StatementIndex < from {
			continue
		}
		switch w.Source.Tag {
		case core.TagNormal:
			out = append(out, w.Source)
		case core.TagEphemeral:
			out = append(out, upstream(writers, lc, w.Source, w.StatementIndex)...)
		}
	}
	return out
}
