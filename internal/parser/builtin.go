package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// DefaultDatabase names the database of tables written without one, the
// same placeholder external lineage tools emit.
const DefaultDatabase = "<default>"

// Builtin extracts column lineage in process. It understands SELECT,
// INSERT ... SELECT, CREATE TABLE ... AS and CREATE VIEW ... AS; other
// statements yield an empty graph.
//
// Identifiers are lower-cased. Tables become "db.table" Table nodes, with
// DefaultDatabase standing in for a missing database. Derived tables and
// CTEs become SubQuery nodes named by their alias. A column that cannot be
// pinned to one table keeps a bare id and lists every table in scope as a
// parent candidate. The schema hint expands stars and resolves bare columns.
type Builtin struct{}

// NewBuiltin returns the in-process parser.
func NewBuiltin() *Builtin {
	return &Builtin{}
}

// Parse implements core.Parser.
func (b *Builtin) Parse(ctx context.Context, stmt, dialect string, hint core.Schema) (*core.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := &grammar{toks: tokenize(stmt, dialect == core.DialectHive)}
	st, err := g.parseStatement()
	if err != nil {
		return nil, err
	}
	gb := newGraphBuilder(hint)
	if st != nil && st.query != nil && len(st.target) > 0 {
		gb.statement(st)
	}
	return gb.graph(), nil
}

// output is one column produced by a query, with the node ids feeding it.
type output struct {
	name    string
	sources []string
}

// relation is a derived table or CTE turned into a SubQuery node.
type relation struct {
	id      string
	columns []string
}

type scopeEntry struct {
	alias  string
	table  string
	rel    *relation
	opaque bool
}

type scope struct {
	parent  *scope
	ctes    map[string]*relation
	entries []scopeEntry
}

func (s *scope) cte(name string) *relation {
	for ; s != nil; s = s.parent {
		if rel, ok := s.ctes[name]; ok {
			return rel
		}
	}
	return nil
}

// find returns the entry a qualifier names, searching outward.
func (s *scope) find(qualifier string) (scopeEntry, bool) {
	for ; s != nil; s = s.parent {
		for _, e := range s.entries {
			if e.matches(qualifier) {
				return e, true
			}
		}
	}
	return scopeEntry{}, false
}

func (e scopeEntry) matches(qualifier string) bool {
	switch {
	case e.alias != "":
		if e.alias == qualifier {
			return true
		}
	case e.rel != nil:
		return e.rel.id == qualifier
	}
	if e.table == "" {
		return false
	}
	return e.table == qualifier || e.table == DefaultDatabase+"."+qualifier ||
		strings.HasSuffix(e.table, "."+qualifier)
}

type graphBuilder struct {
	schema  map[string][]string
	bare    map[string][]string
	nodes   []core.GraphNode
	nodeIdx map[string]int
	edges   []core.GraphEdge
	seen    map[core.GraphEdge]bool
	anon    int
}

func newGraphBuilder(hint core.Schema) *graphBuilder {
	b := &graphBuilder{
		schema:  make(map[string][]string),
		bare:    make(map[string][]string),
		nodeIdx: make(map[string]int),
		seen:    make(map[core.GraphEdge]bool),
	}
	for name, cols := range hint {
		lower := make([]string, len(cols))
		for i, c := range cols {
			lower[i] = strings.ToLower(c)
		}
		key := strings.ToLower(name)
		b.schema[key] = lower
		parts := core.SplitID(key)
		if last := parts[len(parts)-1]; b.bare[last] == nil {
			b.bare[last] = lower
		}
	}
	return b
}

func (b *graphBuilder) graph() *core.Graph {
	return &core.Graph{Nodes: b.nodes, Edges: b.edges}
}

func (b *graphBuilder) addNode(n core.GraphNode) {
	i, ok := b.nodeIdx[n.ID]
	if !ok {
		b.nodeIdx[n.ID] = len(b.nodes)
		b.nodes = append(b.nodes, n)
		return
	}
	existing := &b.nodes[i]
	for _, c := range n.ParentCandidates {
		if !containsCandidate(existing.ParentCandidates, c) {
			existing.ParentCandidates = append(existing.ParentCandidates, c)
		}
	}
}

func containsCandidate(list []core.ParentCandidate, c core.ParentCandidate) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func (b *graphBuilder) taken(id string) bool {
	_, ok := b.nodeIdx[id]
	return ok
}

func (b *graphBuilder) addEdge(source, target string) {
	e := core.GraphEdge{Source: source, Target: target}
	if source == "" || target == "" || b.seen[e] {
		return
	}
	b.seen[e] = true
	b.edges = append(b.edges, e)
}

// column registers a column node owned by parent and returns its id.
func (b *graphBuilder) column(parent string, kind core.NodeKind, name string) string {
	id := parent + "." + name
	b.addNode(core.GraphNode{
		ID:               id,
		Kind:             core.NodeColumn,
		ParentCandidates: []core.ParentCandidate{{Kind: kind, Name: parent}},
	})
	return id
}

func tableID(parts []string) string {
	lower := make([]string, len(parts))
	for i, p := range parts {
		lower[i] = strings.ToLower(p)
	}
	if len(lower) == 1 {
		return DefaultDatabase + "." + lower[0]
	}
	return strings.Join(lower, ".")
}

// known returns the hinted columns of a table id, or nil.
func (b *graphBuilder) known(table string) []string {
	if cols, ok := b.schema[table]; ok {
		return cols
	}
	name := strings.TrimPrefix(table, DefaultDatabase+".")
	if cols, ok := b.schema[name]; ok {
		return cols
	}
	if !strings.Contains(name, ".") {
		return b.bare[name]
	}
	return nil
}

func (b *graphBuilder) statement(st *statement) {
	outs := b.query(st.query, nil)
	target := tableID(st.target)
	b.addNode(core.GraphNode{ID: target, Kind: core.NodeTable})

	names := lowerAll(st.columns)
	if len(names) == 0 && st.insert {
		if cols := b.known(target); len(cols) >= len(outs) && !hasStar(outs) {
			names = cols
		}
	}
	for i, o := range outs {
		name := o.name
		if i < len(names) {
			name = names[i]
		}
		col := b.column(target, core.NodeTable, name)
		for _, src := range o.sources {
			b.addEdge(src, col)
		}
	}
}

func (b *graphBuilder) query(q *query, parent *scope) []output {
	sc := &scope{parent: parent, ctes: make(map[string]*relation)}
	for _, c := range q.ctes {
		outs := b.query(c.query, sc)
		sc.ctes[strings.ToLower(c.name)] = b.relation(c.name, outs, c.columns)
	}

	var outs []output
	for i, term := range q.terms {
		termOuts := b.selectCore(term, sc)
		if i == 0 {
			outs = termOuts
			continue
		}
		for j := range outs {
			if j < len(termOuts) {
				outs[j].sources = appendUnique(outs[j].sources, termOuts[j].sources...)
			}
		}
	}
	return outs
}

// relation registers a SubQuery node and its columns, linking each output
// of the inner query to its column. names override output names by position.
func (b *graphBuilder) relation(name string, outs []output, names []string) *relation {
	id := strings.ToLower(name)
	if id == "" {
		b.anon++
		id = "subquery_" + strconv.Itoa(b.anon)
	}
	for base, n := id, 2; b.taken(id); n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	b.addNode(core.GraphNode{ID: id, Kind: core.NodeSubQuery})

	rel := &relation{id: id}
	names = lowerAll(names)
	for i, o := range outs {
		colName := o.name
		if i < len(names) {
			colName = names[i]
		}
		col := b.column(id, core.NodeSubQuery, colName)
		for _, src := range o.sources {
			b.addEdge(src, col)
		}
		rel.columns = append(rel.columns, colName)
	}
	return rel
}

func (b *graphBuilder) selectCore(c *selectCore, parent *scope) []output {
	if c.paren != nil {
		return b.query(c.paren, parent)
	}
	sc := &scope{parent: parent}
	for _, ref := range c.from {
		sc.entries = append(sc.entries, b.register(ref, parent))
	}

	var outs []output
	for i, item := range c.items {
		if item.star {
			outs = append(outs, b.expandStar(sc, item.qualifier)...)
			continue
		}
		name := strings.ToLower(item.alias)
		if name == "" {
			name = inferName(item.expr, i)
		}
		outs = append(outs, output{name: name, sources: b.sources(sc, item.expr)})
	}
	return outs
}

// register turns a FROM entry into a scope entry. Derived tables see the
// enclosing query scope but not their sibling entries.
func (b *graphBuilder) register(ref tableRef, parent *scope) scopeEntry {
	alias := strings.ToLower(ref.alias)
	switch {
	case ref.sub != nil:
		rel := b.relation(alias, b.query(ref.sub, parent), ref.columns)
		return scopeEntry{alias: alias, rel: rel}
	case ref.opaque:
		return scopeEntry{alias: alias, opaque: true}
	}
	if len(ref.name) == 1 {
		if rel := parent.cte(strings.ToLower(ref.name[0])); rel != nil {
			return scopeEntry{alias: alias, rel: rel}
		}
	}
	table := tableID(ref.name)
	b.addNode(core.GraphNode{ID: table, Kind: core.NodeTable})
	return scopeEntry{alias: alias, table: table}
}

// columnOf returns the node id of column name in entry e.
func (b *graphBuilder) columnOf(e scopeEntry, name string) string {
	switch {
	case e.rel != nil:
		return b.column(e.rel.id, core.NodeSubQuery, name)
	case e.table != "":
		return b.column(e.table, core.NodeTable, name)
	}
	return ""
}

func (b *graphBuilder) columnsOf(e scopeEntry) []string {
	switch {
	case e.rel != nil:
		return e.rel.columns
	case e.table != "":
		return b.known(e.table)
	}
	return nil
}

func (b *graphBuilder) expandStar(sc *scope, qualifier []string) []output {
	entries := sc.entries
	if len(qualifier) > 0 {
		e, ok := sc.find(strings.ToLower(strings.Join(qualifier, ".")))
		if !ok {
			table := tableID(qualifier)
			b.addNode(core.GraphNode{ID: table, Kind: core.NodeTable})
			e = scopeEntry{table: table}
		}
		entries = []scopeEntry{e}
	}

	var outs []output
	for _, e := range entries {
		cols := b.columnsOf(e)
		if len(cols) == 0 {
			if src := b.columnOf(e, "*"); src != "" {
				outs = append(outs, output{name: "*", sources: []string{src}})
			}
			continue
		}
		for _, c := range cols {
			outs = append(outs, output{name: c, sources: []string{b.columnOf(e, c)}})
		}
	}
	return outs
}

// sources returns the column node ids an expression reads, in order.
func (b *graphBuilder) sources(sc *scope, e expr) []string {
	var out []string
	walk(e, func(ref *colRef) {
		if id := b.resolve(sc, ref.parts); id != "" {
			out = appendUnique(out, id)
		}
	})
	return out
}

// resolve maps a column reference to a node id.
func (b *graphBuilder) resolve(sc *scope, parts []string) string {
	col := strings.ToLower(parts[len(parts)-1])
	if len(parts) > 1 {
		qualifier := strings.ToLower(strings.Join(parts[:len(parts)-1], "."))
		if e, ok := sc.find(qualifier); ok {
			return b.columnOf(e, col)
		}
		// Unknown qualifier: treat it as a table outside the FROM clause.
		table := tableID(parts[:len(parts)-1])
		b.addNode(core.GraphNode{ID: table, Kind: core.NodeTable})
		return b.column(table, core.NodeTable, col)
	}

	var candidates []scopeEntry
	for s := sc; s != nil && len(candidates) == 0; s = s.parent {
		for _, e := range s.entries {
			if !e.opaque {
				candidates = append(candidates, e)
			}
		}
	}
	switch len(candidates) {
	case 0:
		return ""
	case 1:
		return b.columnOf(candidates[0], col)
	}
	for _, e := range candidates {
		for _, c := range b.columnsOf(e) {
			if c == col {
				return b.columnOf(e, col)
			}
		}
	}

	node := core.GraphNode{ID: col, Kind: core.NodeColumn}
	for _, e := range candidates {
		if e.rel != nil {
			node.ParentCandidates = append(node.ParentCandidates, core.ParentCandidate{Kind: core.NodeSubQuery, Name: e.rel.id})
		} else {
			node.ParentCandidates = append(node.ParentCandidates, core.ParentCandidate{Kind: core.NodeTable, Name: e.table})
		}
	}
	b.addNode(node)
	return col
}

// walk visits the column references of an expression that feed its value.
// Subquery expressions are skipped.
func walk(e expr, visit func(*colRef)) {
	switch x := e.(type) {
	case *colRef:
		visit(x)
	case *funcCall:
		for _, a := range x.args {
			walk(a, visit)
		}
	case *castExpr:
		walk(x.inner, visit)
	case *parenExpr:
		walk(x.inner, visit)
	case *compound:
		for _, p := range x.parts {
			walk(p, visit)
		}
	}
}

// inferName names an unaliased select item the way Hive does: a column
// keeps its name and anything else becomes _c<position>.
func inferName(e expr, index int) string {
	switch x := e.(type) {
	case *colRef:
		return strings.ToLower(x.parts[len(x.parts)-1])
	case *castExpr:
		if _, ok := x.inner.(*colRef); ok {
			return inferName(x.inner, index)
		}
	case *parenExpr:
		return inferName(x.inner, index)
	}
	return "_c" + strconv.Itoa(index)
}

func hasStar(outs []output) bool {
	for _, o := range outs {
		if o.name == "*" {
			return true
		}
	}
	return false
}

func lowerAll(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, x := range list {
			if x == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}
