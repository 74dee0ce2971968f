package parser

import (
	"fmt"
	"strings"
)

// Grammar overview of the statements the built-in parser understands:
//
//	statement   → [with] (query | insert | create) [;]
//	insert      → INSERT (INTO|OVERWRITE) [TABLE] name [PARTITION (...)] [(cols)] query
//	create      → CREATE [OR REPLACE] [TEMP...] (TABLE|VIEW) name [(...)] ... AS query
//	query       → [with] term ((UNION|INTERSECT|EXCEPT|MINUS) [ALL|DISTINCT] term)*
//	term        → select_core | ( query )
//	select_core → SELECT [DISTINCT] items [FROM from_list] clauses...
//
// Only select items carry lineage, so WHERE, GROUP BY, HAVING and the other
// trailing clauses are skipped with balanced parentheses.

// statement is a parsed write. query is nil for statements that carry no
// column lineage, such as INSERT ... VALUES or plain DDL.
type statement struct {
	target  []string
	columns []string
	insert  bool
	query   *query
}

type query struct {
	ctes  []cte
	terms []*selectCore
}

type cte struct {
	name    string
	columns []string
	query   *query
}

// selectCore is one SELECT, or a parenthesized query when paren is set.
type selectCore struct {
	paren *query
	items []selectItem
	from  []tableRef
}

type selectItem struct {
	star      bool
	qualifier []string
	expr      expr
	alias     string
}

// tableRef is a FROM entry: a named table, a derived table (sub) or an
// opaque table function.
type tableRef struct {
	name    []string
	sub     *query
	opaque  bool
	alias   string
	columns []string
}

type expr interface{ isExpr() }

type (
	colRef   struct{ parts []string }
	literal  struct{}
	funcCall struct {
		name string
		args []expr
	}
	castExpr  struct{ inner expr }
	parenExpr struct{ inner expr }
	compound  struct{ parts []expr }
	// subqueryExpr is a scalar, IN or EXISTS subquery. Its columns belong to
	// its own scope and never feed the enclosing item.
	subqueryExpr struct{ query *query }
)

func (colRef) isExpr()       {}
func (literal) isExpr()      {}
func (funcCall) isExpr()     {}
func (castExpr) isExpr()     {}
func (parenExpr) isExpr()    {}
func (compound) isExpr()     {}
func (subqueryExpr) isExpr() {}

// SyntaxError reports where the built-in parser gave up.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Words that end an expression or a FROM entry instead of naming an alias.
var reserved = map[string]bool{
	"all": true, "and": true, "anti": true, "as": true, "between": true, "by": true,
	"case": true, "cluster": true, "create": true, "cross": true, "distribute": true,
	"else": true, "end": true, "except": true, "fetch": true, "from": true, "full": true,
	"group": true, "having": true, "ilike": true, "in": true, "inner": true, "insert": true,
	"intersect": true, "into": true, "is": true, "join": true, "lateral": true, "left": true,
	"like": true, "limit": true, "minus": true, "natural": true, "not": true, "offset": true,
	"on": true, "or": true, "order": true, "outer": true, "qualify": true, "regexp": true,
	"right": true, "rlike": true, "select": true, "semi": true, "sort": true,
	"tablesample": true, "then": true, "union": true, "using": true, "values": true,
	"when": true, "where": true, "window": true, "with": true,
}

var setOperators = []string{"union", "intersect", "except", "minus"}

var binaryOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "||": true, "&": true, "|": true,
	"^": true, "->": true, "->>": true, "=": true, "==": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true, "<=>": true,
}

var comparisonOperators = map[string]bool{
	"=": true, "==": true, "!=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true, "<=>": true,
}

var typeWords = map[string]bool{
	"precision": true, "varying": true, "with": true, "without": true, "time": true,
	"zone": true, "unsigned": true, "local": true,
}

type grammar struct {
	toks []token
	pos  int
}

func (g *grammar) cur() token {
	return g.toks[g.pos]
}

func (g *grammar) peek(n int) token {
	if g.pos+n >= len(g.toks) {
		return g.toks[len(g.toks)-1]
	}
	return g.toks[g.pos+n]
}

func (g *grammar) next() token {
	t := g.toks[g.pos]
	if t.kind != tokEOF {
		g.pos++
	}
	return t
}

func (g *grammar) accept(kw string) bool {
	if g.cur().is(kw) {
		g.next()
		return true
	}
	return false
}

func (g *grammar) acceptKind(k tokenKind) bool {
	if g.cur().kind == k {
		g.next()
		return true
	}
	return false
}

func (g *grammar) errorf(format string, args ...any) error {
	t := g.cur()
	return &SyntaxError{Line: t.line, Column: t.col, Message: fmt.Sprintf(format, args...)}
}

func (g *grammar) expect(kw string) error {
	if !g.accept(kw) {
		return g.errorf("expected %s, found %s", strings.ToUpper(kw), g.cur())
	}
	return nil
}

func (g *grammar) expectKind(k tokenKind, what string) error {
	if !g.acceptKind(k) {
		return g.errorf("expected %s, found %s", what, g.cur())
	}
	return nil
}

func (g *grammar) atSetOperator() bool {
	for _, op := range setOperators {
		if g.cur().is(op) {
			return true
		}
	}
	return false
}

// startsQuery reports whether the token at offset n opens a query.
func (g *grammar) startsQuery(n int) bool {
	t := g.peek(n)
	return t.is("select") || t.is("values") || (t.is("with") && g.peek(n+1).kind == tokIdent) ||
		(t.kind == tokLParen && g.startsQuery(n+1))
}

// skipBalanced consumes a parenthesized group starting at the current "(".
func (g *grammar) skipBalanced() error {
	if err := g.expectKind(tokLParen, "("); err != nil {
		return err
	}
	for depth := 1; depth > 0; {
		switch g.next().kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokEOF:
			return g.errorf("unbalanced parentheses")
		}
	}
	return nil
}

// skipUntil consumes tokens at parenthesis depth zero until stop matches,
// a closing parenthesis of the enclosing group, a semicolon or the end.
func (g *grammar) skipUntil(stop func() bool) error {
	for {
		t := g.cur()
		switch {
		case t.kind == tokEOF, t.kind == tokSemicolon, t.kind == tokRParen:
			return nil
		case t.kind == tokLParen:
			if err := g.skipBalanced(); err != nil {
				return err
			}
		case stop():
			return nil
		default:
			g.next()
		}
	}
}

// parseStatement parses one statement. It returns nil for statements that
// write no table through a query.
func (g *grammar) parseStatement() (*statement, error) {
	var ctes []cte
	if g.cur().is("with") {
		var err error
		if ctes, err = g.parseWith(); err != nil {
			return nil, err
		}
	}

	var st *statement
	var err error
	switch t := g.cur(); {
	case t.is("insert"):
		st, err = g.parseInsert()
	case t.is("create"):
		st, err = g.parseCreate()
	case t.is("select"), t.kind == tokLParen && g.startsQuery(0):
		var q *query
		if q, err = g.parseQuery(); err == nil {
			st = &statement{query: q}
		}
	default:
		// UPDATE, DELETE, MERGE and other statements carry no select lineage.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	g.acceptKind(tokSemicolon)
	if g.cur().kind != tokEOF {
		return nil, g.errorf("unexpected %s", g.cur())
	}
	if st != nil && st.query != nil && len(ctes) > 0 {
		st.query.ctes = append(ctes, st.query.ctes...)
	}
	return st, nil
}

func (g *grammar) parseInsert() (*statement, error) {
	g.next()
	if !g.accept("into") && !g.accept("overwrite") {
		return nil, g.errorf("expected INTO or OVERWRITE, found %s", g.cur())
	}
	g.accept("table")
	name, err := g.parseName()
	if err != nil {
		return nil, err
	}
	st := &statement{target: name, insert: true}

	for {
		switch {
		case g.cur().is("partition"):
			g.next()
			if err := g.skipBalanced(); err != nil {
				return nil, err
			}
		case g.cur().is("if"):
			g.next()
			if err := g.expect("not"); err != nil {
				return nil, err
			}
			if err := g.expect("exists"); err != nil {
				return nil, err
			}
		case g.cur().kind == tokLParen && !g.startsQuery(1):
			if st.columns, err = g.parseIdentList(); err != nil {
				return nil, err
			}
		case g.cur().is("values"), g.cur().is("default"):
			return st, g.skipUntil(func() bool { return false })
		default:
			st.query, err = g.parseQuery()
			return st, err
		}
	}
}

var createModifiers = []string{
	"global", "local", "temp", "temporary", "volatile", "multiset", "set",
	"external", "transient", "unlogged", "materialized",
}

func (g *grammar) parseCreate() (*statement, error) {
	g.next()
	if g.accept("or") {
		if err := g.expect("replace"); err != nil {
			return nil, err
		}
	}
	for accepted := true; accepted; {
		accepted = false
		for _, m := range createModifiers {
			if g.accept(m) {
				accepted = true
			}
		}
	}
	if !g.accept("table") && !g.accept("view") {
		// Indexes, functions and databases have no column lineage.
		return nil, g.skipUntil(func() bool { return false })
	}
	if g.accept("if") {
		if err := g.expect("not"); err != nil {
			return nil, err
		}
		if err := g.expect("exists"); err != nil {
			return nil, err
		}
	}
	name, err := g.parseName()
	if err != nil {
		return nil, err
	}
	st := &statement{target: name}

	if g.cur().kind == tokLParen && !g.startsQuery(1) {
		if cols, ok := g.tryIdentList(); ok {
			st.columns = cols
		} else if err := g.skipBalanced(); err != nil {
			return nil, err
		}
	}

	// Storage clauses may sit between the name and AS; the query starts at
	// the first AS followed by a query.
	err = g.skipUntil(func() bool {
		return g.cur().is("as") && g.startsQuery(1) || g.startsQuery(0)
	})
	if err != nil {
		return nil, err
	}
	if g.cur().kind == tokEOF || g.cur().kind == tokSemicolon {
		return st, nil
	}
	g.accept("as")
	st.query, err = g.parseQuery()
	return st, err
}

func (g *grammar) parseWith() ([]cte, error) {
	g.next()
	g.accept("recursive")
	var ctes []cte
	for {
		name, err := g.parseIdent()
		if err != nil {
			return nil, err
		}
		c := cte{name: name}
		if g.cur().kind == tokLParen {
			if c.columns, err = g.parseIdentList(); err != nil {
				return nil, err
			}
		}
		if err := g.expect("as"); err != nil {
			return nil, err
		}
		g.accept("materialized")
		if err := g.expectKind(tokLParen, "("); err != nil {
			return nil, err
		}
		if c.query, err = g.parseQuery(); err != nil {
			return nil, err
		}
		if err := g.expectKind(tokRParen, ")"); err != nil {
			return nil, err
		}
		ctes = append(ctes, c)
		if !g.acceptKind(tokComma) {
			return ctes, nil
		}
	}
}

func (g *grammar) parseQuery() (*query, error) {
	q := &query{}
	if g.cur().is("with") {
		ctes, err := g.parseWith()
		if err != nil {
			return nil, err
		}
		q.ctes = ctes
	}
	for {
		term, err := g.parseTerm()
		if err != nil {
			return nil, err
		}
		q.terms = append(q.terms, term)
		if !g.atSetOperator() {
			return q, nil
		}
		g.next()
		if !g.accept("all") {
			g.accept("distinct")
		}
	}
}

func (g *grammar) parseTerm() (*selectCore, error) {
	switch t := g.cur(); {
	case t.kind == tokLParen:
		g.next()
		q, err := g.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := g.expectKind(tokRParen, ")"); err != nil {
			return nil, err
		}
		// ORDER BY or LIMIT may follow a parenthesized term.
		return &selectCore{paren: q}, g.skipUntil(g.atSetOperator)
	case t.is("values"):
		g.next()
		return &selectCore{}, g.skipUntil(g.atSetOperator)
	case t.is("select"):
		return g.parseSelect()
	}
	return nil, g.errorf("expected SELECT, found %s", g.cur())
}

func (g *grammar) parseSelect() (*selectCore, error) {
	g.next()
	if !g.accept("distinct") {
		g.accept("all")
	}
	if g.cur().is("top") && g.peek(1).kind == tokNumber {
		g.next()
		g.next()
	}

	core := &selectCore{}
	for {
		item, err := g.parseSelectItem()
		if err != nil {
			return nil, err
		}
		core.items = append(core.items, item)
		if !g.acceptKind(tokComma) {
			break
		}
	}

	if g.accept("from") {
		from, err := g.parseFromList()
		if err != nil {
			return nil, err
		}
		core.from = from
	}
	return core, g.skipUntil(g.atSetOperator)
}

func (g *grammar) parseSelectItem() (selectItem, error) {
	if g.cur().isOp("*") {
		g.next()
		return selectItem{star: true}, nil
	}
	if qual, ok := g.tryQualifiedStar(); ok {
		return selectItem{star: true, qualifier: qual}, nil
	}

	e, err := g.parseExpr()
	if err != nil {
		return selectItem{}, err
	}
	item := selectItem{expr: e}
	item.alias, err = g.parseAlias()
	return item, err
}

// tryQualifiedStar consumes name.* when the current tokens form one.
func (g *grammar) tryQualifiedStar() ([]string, bool) {
	n := 0
	var parts []string
	for g.peek(n).kind == tokIdent && g.peek(n+1).kind == tokDot {
		parts = append(parts, g.peek(n).text)
		n += 2
		if g.peek(n).isOp("*") {
			g.pos += n + 1
			return parts, true
		}
	}
	return nil, false
}

// parseAlias reads an optional [AS] alias. Hive's AS (a, b) form yields
// the first name.
func (g *grammar) parseAlias() (string, error) {
	if g.accept("as") {
		switch t := g.cur(); {
		case t.kind == tokLParen:
			names, err := g.parseIdentList()
			if err != nil || len(names) == 0 {
				return "", err
			}
			return names[0], nil
		case t.kind == tokString:
			g.next()
			return t.text, nil
		}
		return g.parseIdent()
	}
	if t := g.cur(); t.kind == tokIdent && (t.quoted || !reserved[strings.ToLower(t.text)]) {
		g.next()
		return t.text, nil
	}
	return "", nil
}

func (g *grammar) parseFromList() ([]tableRef, error) {
	var refs []tableRef
	ref, err := g.parseTableRef()
	if err != nil {
		return nil, err
	}
	refs = append(refs, ref...)

	for {
		switch {
		case g.acceptKind(tokComma):
		case g.cur().is("lateral") && g.peek(1).is("view"):
			if err := g.skipLateralView(); err != nil {
				return nil, err
			}
			continue
		case g.atJoin():
			g.consumeJoin()
		default:
			return refs, nil
		}

		ref, err := g.parseTableRef()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref...)

		switch {
		case g.accept("on"):
			err = g.skipUntil(func() bool {
				return g.atJoin() || g.cur().kind == tokComma || g.atClause()
			})
		case g.accept("using"):
			err = g.skipBalanced()
		}
		if err != nil {
			return nil, err
		}
	}
}

var joinWords = []string{"join", "inner", "left", "right", "full", "cross", "natural", "straight_join"}

func (g *grammar) atJoin() bool {
	for _, w := range joinWords {
		if g.cur().is(w) {
			return true
		}
	}
	return false
}

func (g *grammar) consumeJoin() {
	for g.atJoin() || g.cur().is("outer") || g.cur().is("semi") || g.cur().is("anti") {
		done := g.cur().is("join") || g.cur().is("straight_join")
		g.next()
		if done {
			return
		}
	}
}

// atClause reports whether the current token starts a clause after FROM.
func (g *grammar) atClause() bool {
	t := g.cur()
	if t.kind != tokIdent || t.quoted {
		return false
	}
	switch strings.ToLower(t.text) {
	case "where", "group", "having", "order", "limit", "qualify", "window",
		"cluster", "distribute", "sort", "offset", "fetch", "lateral":
		return true
	}
	return g.atSetOperator()
}

// skipLateralView consumes Hive's LATERAL VIEW [OUTER] f(...) t AS c1, c2.
func (g *grammar) skipLateralView() error {
	g.next()
	g.next()
	g.accept("outer")
	if _, err := g.parseExpr(); err != nil {
		return err
	}
	if !g.cur().is("as") {
		if _, err := g.parseIdent(); err != nil {
			return err
		}
	}
	if g.accept("as") {
		for {
			if _, err := g.parseIdent(); err != nil {
				return err
			}
			if !(g.cur().kind == tokComma && g.peek(1).kind == tokIdent && !g.startsRef(1)) {
				return nil
			}
			g.next()
		}
	}
	return nil
}

// startsRef reports whether the tokens at offset n look like a FROM entry
// rather than another LATERAL VIEW column alias.
func (g *grammar) startsRef(n int) bool {
	next := g.peek(n + 1)
	return next.kind == tokDot ||
		next.kind == tokIdent && (next.quoted || !reserved[strings.ToLower(next.text)])
}

func (g *grammar) parseTableRef() ([]tableRef, error) {
	g.accept("lateral")
	var ref tableRef
	switch t := g.cur(); {
	case t.kind == tokLParen && g.startsQuery(1):
		g.next()
		q, err := g.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := g.expectKind(tokRParen, ")"); err != nil {
			return nil, err
		}
		ref.sub = q
	case t.kind == tokLParen:
		g.next()
		refs, err := g.parseFromList()
		if err != nil {
			return nil, err
		}
		return refs, g.expectKind(tokRParen, ")")
	case t.kind == tokIdent:
		name, err := g.parseName()
		if err != nil {
			return nil, err
		}
		ref.name = name
		if g.cur().kind == tokLParen {
			ref.opaque = true
			if err := g.skipBalanced(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, g.errorf("expected table, found %s", t)
	}

	if g.accept("tablesample") {
		if err := g.skipBalanced(); err != nil {
			return nil, err
		}
	}
	alias, err := g.parseAlias()
	if err != nil {
		return nil, err
	}
	ref.alias = alias
	if alias != "" && g.cur().kind == tokLParen {
		if ref.columns, err = g.parseIdentList(); err != nil {
			return nil, err
		}
	}
	return []tableRef{ref}, nil
}

func (g *grammar) parseIdent() (string, error) {
	t := g.cur()
	if t.kind != tokIdent {
		return "", g.errorf("expected identifier, found %s", t)
	}
	g.next()
	return t.text, nil
}

// parseName reads a dotted name. Quoted segments holding dots, as in
// `db.table`, are split.
func (g *grammar) parseName() ([]string, error) {
	var parts []string
	for {
		t := g.cur()
		if t.kind != tokIdent {
			return nil, g.errorf("expected name, found %s", t)
		}
		g.next()
		if t.quoted {
			parts = append(parts, strings.Split(t.text, ".")...)
		} else {
			parts = append(parts, t.text)
		}
		if g.cur().kind == tokDot && g.peek(1).isOp("*") {
			g.next()
			g.next()
			return append(parts, "*"), nil
		}
		if g.cur().kind != tokDot || g.peek(1).kind != tokIdent {
			return parts, nil
		}
		g.next()
	}
}

func (g *grammar) parseIdentList() ([]string, error) {
	if err := g.expectKind(tokLParen, "("); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := g.parseIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if !g.acceptKind(tokComma) {
			break
		}
	}
	return names, g.expectKind(tokRParen, ")")
}

// tryIdentList parses a plain (a, b) list and rewinds when the group holds
// anything else, such as column definitions.
func (g *grammar) tryIdentList() ([]string, bool) {
	start := g.pos
	names, err := g.parseIdentList()
	if err != nil {
		g.pos = start
		return nil, false
	}
	return names, true
}

// parseExpr parses a full expression including boolean operators.
func (g *grammar) parseExpr() (expr, error) {
	return g.parseBinary(true)
}

// parseBinary parses operands joined by binary operators. Without logical,
// AND, OR and comparisons end the expression so BETWEEN can find its AND.
func (g *grammar) parseBinary(logical bool) (expr, error) {
	first, err := g.parseUnary()
	if err != nil {
		return nil, err
	}
	parts := []expr{first}
	add := func(e expr, err error) error {
		if err == nil {
			parts = append(parts, e)
		}
		return err
	}

	for {
		t := g.cur()
		switch {
		case t.kind == tokOp && binaryOperators[t.text] && (logical || !comparisonOperators[t.text]):
			g.next()
			err = add(g.parseUnary())
		case t.isOp("::"):
			g.next()
			err = g.skipType()
		case t.isOp("["):
			g.next()
			if err = add(g.parseExpr()); err == nil {
				if !g.cur().isOp("]") {
					return nil, g.errorf("expected ], found %s", g.cur())
				}
				g.next()
			}
		case t.is("collate"):
			g.next()
			_, err = g.parseIdent()
		case !logical:
			return &compound{parts: parts}, nil
		case t.is("and"), t.is("or"), t.is("xor"):
			g.next()
			err = add(g.parseUnary())
		case t.is("is"):
			g.next()
			g.accept("not")
			if g.accept("distinct") {
				if err = g.expect("from"); err == nil {
					err = add(g.parseBinary(false))
				}
			} else {
				g.next()
			}
		case t.is("not") && g.peek(1).is("in"), t.is("in"):
			g.accept("not")
			g.next()
			err = add(g.parseInList())
		case t.is("not") && g.peek(1).is("between"), t.is("between"):
			g.accept("not")
			g.next()
			if err = add(g.parseBinary(false)); err == nil {
				if err = g.expect("and"); err == nil {
					err = add(g.parseBinary(false))
				}
			}
		case g.atPattern(0), t.is("not") && g.atPattern(1):
			g.accept("not")
			g.next()
			g.accept("to")
			if err = add(g.parseBinary(false)); err == nil && g.accept("escape") {
				err = add(g.parseUnary())
			}
		default:
			if len(parts) == 1 {
				return first, nil
			}
			return &compound{parts: parts}, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (g *grammar) atPattern(n int) bool {
	t := g.peek(n)
	return t.is("like") || t.is("ilike") || t.is("rlike") || t.is("regexp") || t.is("similar")
}

func (g *grammar) parseInList() (expr, error) {
	if g.cur().kind != tokLParen {
		return nil, g.errorf("expected ( after IN, found %s", g.cur())
	}
	if g.startsQuery(1) {
		return g.parseParen()
	}
	g.next()
	var parts []expr
	for g.cur().kind != tokRParen {
		e, err := g.parseExpr()
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
		if !g.acceptKind(tokComma) {
			break
		}
	}
	return &compound{parts: parts}, g.expectKind(tokRParen, ")")
}

func (g *grammar) parseUnary() (expr, error) {
	t := g.cur()
	if t.is("not") || t.isOp("-") || t.isOp("+") || t.isOp("~") || t.isOp("!") || t.is("prior") {
		g.next()
		return g.parseUnary()
	}
	return g.parsePrimary()
}

var dateTypes = map[string]bool{
	"date": true, "time": true, "timestamp": true, "timestamptz": true, "datetime": true,
}

var niladic = map[string]bool{
	"current_date": true, "current_time": true, "current_timestamp": true,
	"localtime": true, "localtimestamp": true, "current_user": true,
	"session_user": true, "sysdate": true, "systimestamp": true, "current_schema": true,
}

func (g *grammar) parsePrimary() (expr, error) {
	t := g.cur()
	switch t.kind {
	case tokNumber, tokString, tokParam:
		g.next()
		return &literal{}, nil
	case tokLParen:
		return g.parseParen()
	case tokIdent:
	default:
		if t.isOp("*") {
			g.next()
			return &literal{}, nil
		}
		return nil, g.errorf("unexpected %s", t)
	}

	word := strings.ToLower(t.text)
	if t.quoted {
		word = ""
	}
	switch {
	case word == "case":
		return g.parseCase()
	case word == "cast" || word == "try_cast" || word == "safe_cast":
		return g.parseCast()
	case word == "exists":
		g.next()
		return g.parseParen()
	case word == "interval":
		g.next()
		if _, err := g.parseUnary(); err != nil {
			return nil, err
		}
		g.skipIntervalUnit()
		return &literal{}, nil
	case word == "null" || word == "true" || word == "false" || niladic[word] && g.peek(1).kind != tokLParen:
		g.next()
		return &literal{}, nil
	case dateTypes[word] && g.peek(1).kind == tokString:
		g.next()
		g.next()
		return &literal{}, nil
	case reserved[word] && g.peek(1).kind != tokLParen:
		return nil, g.errorf("unexpected %s", t)
	}

	name, err := g.parseName()
	if err != nil {
		return nil, err
	}
	if g.cur().kind != tokLParen {
		return &colRef{parts: name}, nil
	}
	return g.parseCall(strings.ToLower(strings.Join(name, ".")))
}

func (g *grammar) parseParen() (expr, error) {
	if err := g.expectKind(tokLParen, "("); err != nil {
		return nil, err
	}
	if g.startsQuery(0) {
		q, err := g.parseQuery()
		if err != nil {
			return nil, err
		}
		return &subqueryExpr{query: q}, g.expectKind(tokRParen, ")")
	}
	var parts []expr
	for {
		e, err := g.parseExpr()
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
		if !g.acceptKind(tokComma) {
			break
		}
	}
	if err := g.expectKind(tokRParen, ")"); err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return &parenExpr{inner: parts[0]}, nil
	}
	return &compound{parts: parts}, nil
}

func (g *grammar) parseCase() (expr, error) {
	g.next()
	var parts []expr
	add := func(e expr, err error) error {
		if err == nil {
			parts = append(parts, e)
		}
		return err
	}
	if !g.cur().is("when") {
		if err := add(g.parseExpr()); err != nil {
			return nil, err
		}
	}
	for g.accept("when") {
		if err := add(g.parseExpr()); err != nil {
			return nil, err
		}
		if err := g.expect("then"); err != nil {
			return nil, err
		}
		if err := add(g.parseExpr()); err != nil {
			return nil, err
		}
	}
	if g.accept("else") {
		if err := add(g.parseExpr()); err != nil {
			return nil, err
		}
	}
	return &compound{parts: parts}, g.expect("end")
}

func (g *grammar) parseCast() (expr, error) {
	g.next()
	if err := g.expectKind(tokLParen, "("); err != nil {
		return nil, err
	}
	inner, err := g.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := g.expect("as"); err != nil {
		return nil, err
	}
	if err := g.skipType(); err != nil {
		return nil, err
	}
	return &castExpr{inner: inner}, g.expectKind(tokRParen, ")")
}

// skipType consumes a type name such as DECIMAL(10, 2), ARRAY<STRING> or
// TIMESTAMP WITH TIME ZONE.
func (g *grammar) skipType() error {
	if _, err := g.parseIdent(); err != nil {
		return err
	}
	for {
		t := g.cur()
		switch {
		case t.kind == tokLParen:
			if err := g.skipBalanced(); err != nil {
				return err
			}
		case t.isOp("<"):
			for depth := 0; ; {
				switch tok := g.next(); {
				case tok.isOp("<"):
					depth++
				case tok.isOp(">"):
					depth--
				case tok.kind == tokEOF:
					return g.errorf("unterminated type")
				}
				if depth == 0 {
					break
				}
			}
		case t.isOp("[") && g.peek(1).isOp("]"):
			g.next()
			g.next()
		case t.kind == tokIdent && !t.quoted && typeWords[strings.ToLower(t.text)]:
			g.next()
		default:
			return nil
		}
	}
}

var intervalUnits = map[string]bool{
	"year": true, "years": true, "quarter": true, "month": true, "months": true,
	"week": true, "weeks": true, "day": true, "days": true, "hour": true, "hours": true,
	"minute": true, "minutes": true, "second": true, "seconds": true,
}

func (g *grammar) skipIntervalUnit() {
	if t := g.cur(); t.kind == tokIdent && intervalUnits[strings.ToLower(t.text)] {
		g.next()
		if g.accept("to") {
			g.next()
		}
	}
}

// Functions whose leading bare word names a date part, not a column.
var datePartFuncs = map[string]bool{
	"extract": true, "date_part": true, "datediff": true, "dateadd": true,
	"date_trunc": true, "datepart": true, "timestampadd": true, "timestampdiff": true,
}

func (g *grammar) parseCall(name string) (expr, error) {
	g.next()
	call := &funcCall{name: name}
	if !g.accept("distinct") {
		g.accept("all")
	}
	if name == "trim" {
		for _, w := range []string{"both", "leading", "trailing"} {
			g.accept(w)
		}
	}
	for g.cur().kind != tokRParen {
		if g.cur().isOp("*") {
			g.next()
		} else {
			arg, err := g.parseExpr()
			if err != nil {
				return nil, err
			}
			if ref, ok := arg.(*colRef); !ok || len(call.args) > 0 || !datePartFuncs[name] ||
				len(ref.parts) > 1 || !intervalUnits[strings.ToLower(ref.parts[0])] {
				call.args = append(call.args, arg)
			}
		}
		switch {
		case g.acceptKind(tokComma):
		case g.cur().is("order"), g.cur().is("separator"):
			if err := g.skipUntil(func() bool { return false }); err != nil {
				return nil, err
			}
		case g.accept("as"):
			if err := g.skipType(); err != nil {
				return nil, err
			}
		case g.accept("from"), g.accept("for"), g.accept("in"):
			// EXTRACT(x FROM d), SUBSTRING(s FROM 1 FOR 2) and POSITION(a IN s)
			// keep their remaining operands.
		case g.cur().kind != tokRParen:
			return nil, g.errorf("expected , or ) in call to %s, found %s", name, g.cur())
		}
	}
	g.next()

	if g.accept("within") {
		if err := g.expect("group"); err != nil {
			return nil, err
		}
		if err := g.skipBalanced(); err != nil {
			return nil, err
		}
	}
	if g.cur().is("filter") && g.peek(1).kind == tokLParen {
		g.next()
		if err := g.skipBalanced(); err != nil {
			return nil, err
		}
	}
	if g.cur().is("ignore") || g.cur().is("respect") {
		g.next()
		if err := g.expect("nulls"); err != nil {
			return nil, err
		}
	}
	if g.accept("over") {
		window, err := g.parseWindow()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, window...)
	}
	return call, nil
}

// parseWindow reads an OVER clause and returns its PARTITION BY and
// ORDER BY expressions.
func (g *grammar) parseWindow() ([]expr, error) {
	if g.cur().kind == tokIdent {
		g.next()
		return nil, nil
	}
	if err := g.expectKind(tokLParen, "("); err != nil {
		return nil, err
	}
	var out []expr
	if t := g.cur(); t.kind == tokIdent && !t.is("partition") && !t.is("order") &&
		!t.is("rows") && !t.is("range") && !t.is("groups") {
		g.next()
	}
	for _, clause := range []string{"partition", "order"} {
		if !g.accept(clause) {
			continue
		}
		if err := g.expect("by"); err != nil {
			return nil, err
		}
		for {
			e, err := g.parseExpr()
			if err != nil {
				return nil, err
			}
			out = append(out, e)
			if !g.accept("asc") {
				g.accept("desc")
			}
			if g.accept("nulls") {
				g.next()
			}
			if !g.acceptKind(tokComma) {
				break
			}
		}
	}
	if err := g.skipUntil(func() bool { return false }); err != nil {
		return nil, err
	}
	return out, g.expectKind(tokRParen, ")")
}
